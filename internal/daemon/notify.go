// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"sync"

	"github.com/ManuGH/vitalsd/internal/dispatcher"
	"github.com/ManuGH/vitalsd/internal/log"
	"github.com/ManuGH/vitalsd/internal/protocol"
	"github.com/rs/zerolog"
)

const notifyQueueSize = 64

// notifier hands messages raised under the recorder lock to a goroutine
// that broadcasts them, so a slow subscriber never stalls frame ingestion.
type notifier struct {
	pub    dispatcher.Publisher
	logger zerolog.Logger

	mu      sync.Mutex
	ch      chan notification
	closed  bool
	started bool
	done    chan struct{}
}

// notification is one queued message. sent, when set, is closed once the
// message has been broadcast or dropped.
type notification struct {
	msg  protocol.Message
	sent chan struct{}
}

func newNotifier(pub dispatcher.Publisher) *notifier {
	return &notifier{
		pub:    pub,
		logger: log.WithComponent("notify"),
		ch:     make(chan notification, notifyQueueSize),
		done:   make(chan struct{}),
	}
}

func (n *notifier) start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started || n.closed {
		return
	}
	n.started = true
	go func() {
		defer close(n.done)
		for item := range n.ch {
			n.pub.Publish(item.msg)
			if item.sent != nil {
				close(item.sent)
			}
		}
	}()
}

// Publish queues msg without blocking. Messages are dropped when the queue
// is full or the notifier is closed.
func (n *notifier) Publish(msg protocol.Message) {
	n.publish(notification{msg: msg})
}

// publishThen queues msg like Publish and closes sent once msg has been
// broadcast. sent is closed immediately when msg is dropped.
func (n *notifier) publishThen(msg protocol.Message, sent chan struct{}) {
	n.publish(notification{msg: msg, sent: sent})
}

func (n *notifier) publish(item notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		if item.sent != nil {
			close(item.sent)
		}
		return
	}
	select {
	case n.ch <- item:
	default:
		if item.sent != nil {
			close(item.sent)
		}
		n.logger.Warn().
			Str(log.FieldEvent, "notify.dropped").
			Str("type", item.msg.MessageType()).
			Msg("notification queue full, message dropped")
	}
}

// close stops accepting messages and waits until queued ones are broadcast.
func (n *notifier) close(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.ch)
	}
	started := n.started
	n.mu.Unlock()
	if !started {
		return nil
	}
	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
