// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"time"

	"github.com/ManuGH/vitalsd/internal/broadcast"
	"github.com/ManuGH/vitalsd/internal/config"
	"github.com/ManuGH/vitalsd/internal/engine"
)

// Deps are the inputs of New. Config is required; the rest default.
type Deps struct {
	Config config.AppConfig

	// Holder enables hot reload of the config file. Optional.
	Holder *config.ConfigHolder

	// Factory overrides the engine executable from Config.Engine.
	Factory engine.Factory

	// Mirror overrides the Redis mirror built from Config.Broadcast.Redis.
	Mirror broadcast.Mirror

	// Now overrides the clock in tests.
	Now func() time.Time
}

func (d *Deps) applyDefaults() {
	if d.Factory == nil {
		d.Factory = engine.NewProcessFactory(d.Config.Engine.Bin, d.Config.Engine.KillGrace)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

// Validate reports missing required dependencies.
func (d Deps) Validate() error {
	if d.Factory == nil {
		return ErrMissingFactory
	}
	return nil
}
