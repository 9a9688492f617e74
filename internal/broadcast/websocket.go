// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package broadcast

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Subscribers are unauthenticated by contract; any origin may attach.
	CheckOrigin: func(*http.Request) bool { return true },
}

type wsSubscriber struct {
	id      string
	conn    *websocket.Conn
	timeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func (w *wsSubscriber) ID() string         { return w.id }
func (w *wsSubscriber) Transport() string  { return TransportWebSocket }
func (w *wsSubscriber) RemoteAddr() string { return w.conn.RemoteAddr().String() }

// Send writes one text message per JSON object.
func (w *wsSubscriber) Send(line []byte) error {
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, bytes.TrimSuffix(line, []byte{'\n'}))
}

func (w *wsSubscriber) Close() error {
	w.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"), deadline)
		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}

// WebSocketHandler upgrades the request and registers the connection as a
// subscriber. Inbound messages are discarded; a read error unregisters it.
func (s *Server) WebSocketHandler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			s.logger.Warn().Err(err).Str("event", "broadcast.ws_upgrade_failed").Msg("websocket upgrade failed")
			return
		}
		sub := &wsSubscriber{id: uuid.NewString(), conn: conn, timeout: s.opts.WriteTimeout}

		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			_ = sub.Close()
			return
		}
		s.readers.Add(1)
		s.mu.Unlock()

		if !s.Add(sub) {
			s.readers.Done()
			return
		}
		go func() {
			defer s.readers.Done()
			for {
				if _, _, err := conn.NextReader(); err != nil {
					s.Remove(sub.id)
					return
				}
			}
		}()
	})
}
