// Package wsclient dials the signaling relay and shuttles envelopes between
// the wire and the call manager.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/AAYUSKARKI/sanjal-signaling/internal/domain"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	sendBufferSize = 32
)

var ErrClosed = errors.New("wsclient: connection closed")

// Handler receives every envelope read off the wire. It runs on the read
// goroutine, so it must not block.
type Handler func(domain.Envelope)

// Client is a signaling connection for one identity. It satisfies
// call.Signaler: Send marshals an envelope and queues it for the writer.
type Client struct {
	self domain.Identity
	conn *websocket.Conn

	send chan []byte
	done chan struct{}

	mu      sync.Mutex
	closed  bool
	handler Handler
}

// Dial connects to the relay at url, announces self with a register
// envelope and starts the read and write pumps.
func Dial(ctx context.Context, url string, self domain.Identity, handler Handler) (*Client, error) {
	if err := self.Validate(); err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		self:    self,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
		handler: handler,
	}
	if err := c.Send(domain.Envelope{Type: domain.EventRegister, From: self}); err != nil {
		conn.Close()
		return nil, err
	}
	go c.readPump()
	go c.writePump()
	log.Info().Str("module", "wsclient").Str("self", string(self)).Str("url", url).Msg("connected to relay")
	return c, nil
}

func (c *Client) Self() domain.Identity { return c.self }

// Send queues an envelope for delivery. It fails once the send buffer is
// full or the connection is closed rather than blocking a caller.
func (c *Client) Send(env domain.Envelope) error {
	if env.From == "" {
		env.From = c.self
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Done closes when the connection is gone, whichever side dropped it.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
	c.conn.Close()
}

func (c *Client) readPump() {
	defer c.Close()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "wsclient").Msg("read failed")
			}
			return
		}
		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Debug().Err(err).Str("module", "wsclient").Msg("malformed envelope dropped")
			continue
		}
		if c.handler != nil {
			c.handler(env)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
