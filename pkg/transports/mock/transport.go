// Package mock provides a scripted in-memory transport for tests and
// offline development.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/parlo-app/parlo/pkg/audio"
	"github.com/parlo-app/parlo/pkg/config"
	"github.com/parlo-app/parlo/pkg/frames"
	"github.com/parlo-app/parlo/pkg/transports"
)

// Transport hands out a single scripted Conn per Connect call. Tests push
// inbound frames with Conn.Push and inspect outbound chunks with
// Conn.Sent.
type Transport struct {
	// ConnectErr, when set, is returned from Connect instead of a Conn.
	ConnectErr error

	mu    sync.Mutex
	conns []*Conn
}

func New() *Transport { return &Transport{} }

func (t *Transport) Name() string { return "mock" }

func (t *Transport) Connect(ctx context.Context, conv config.Conversation) (transports.Conn, error) {
	if t.ConnectErr != nil {
		return nil, t.ConnectErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := &Conn{recv: make(chan frames.Frame, 64)}
	t.mu.Lock()
	t.conns = append(t.conns, c)
	t.mu.Unlock()
	return c, nil
}

// Conns returns every connection handed out so far.
func (t *Transport) Conns() []*Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Conn, len(t.conns))
	copy(out, t.conns)
	return out
}

// Conn is a scripted live session.
type Conn struct {
	recv chan frames.Frame

	mu     sync.Mutex
	sent   []audio.OutboundChunk
	closed bool
}

func (c *Conn) Recv() <-chan frames.Frame { return c.recv }

func (c *Conn) Send(chunk audio.OutboundChunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("mock transport: send on closed session")
	}
	c.sent = append(c.sent, chunk)
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.recv)
	return nil
}

// Push injects an inbound frame as if the provider had sent it.
func (c *Conn) Push(f frames.Frame) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	c.recv <- f
}

// Sent returns outbound chunks in send order.
func (c *Conn) Sent() []audio.OutboundChunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]audio.OutboundChunk, len(c.sent))
	copy(out, c.sent)
	return out
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
