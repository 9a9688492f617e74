// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package broadcast

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transport names used in metrics and logs.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

// Subscriber is one push-only broadcast connection.
type Subscriber interface {
	ID() string
	Transport() string
	RemoteAddr() string
	// Send writes one complete line. It must not block past its write deadline.
	Send(line []byte) error
	Close() error
}

type tcpSubscriber struct {
	id      string
	conn    net.Conn
	timeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func newTCPSubscriber(conn net.Conn, timeout time.Duration) *tcpSubscriber {
	return &tcpSubscriber{id: uuid.NewString(), conn: conn, timeout: timeout}
}

func (t *tcpSubscriber) ID() string         { return t.id }
func (t *tcpSubscriber) Transport() string  { return TransportTCP }
func (t *tcpSubscriber) RemoteAddr() string { return t.conn.RemoteAddr().String() }

func (t *tcpSubscriber) Send(line []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.timeout)); err != nil {
		return err
	}
	_, err := t.conn.Write(line)
	return err
}

func (t *tcpSubscriber) Close() error {
	t.closeOnce.Do(func() { t.closeErr = t.conn.Close() })
	return t.closeErr
}
