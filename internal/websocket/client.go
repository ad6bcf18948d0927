package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
	// maxDropped is how many feed messages a dashboard may miss in a row
	// before it is disconnected and has to reload.
	maxDropped = 64
)

// Client is one dashboard connection following a single merchant.
type Client struct {
	hub        *Hub
	conn       *ws.Conn
	merchantID int64
	send       chan []byte

	dropped  atomic.Int32
	slow     chan struct{}
	slowOnce sync.Once
}

// NewClient creates a Client tied to the given hub and connection.
func NewClient(hub *Hub, conn *ws.Conn, merchantID int64) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		merchantID: merchantID,
		send:       make(chan []byte, sendBufferSize),
		slow:       make(chan struct{}),
	}
}

// enqueue offers data without blocking. It reports false when the message
// was dropped.
func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		c.dropped.Store(0)
		return true
	default:
		if c.dropped.Add(1) >= maxDropped {
			c.slowOnce.Do(func() { close(c.slow) })
		}
		return false
	}
}

// Run registers the client, starts the write pump, and runs the read pump.
// It blocks until the connection is closed, then unregisters.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		c.writePump(ctx)
		cancel()
	}()
	c.readPump(ctx)
}

// readPump discards incoming frames; dashboards only listen. It returns
// when the connection closes.
func (c *Client) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, ws.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-c.slow:
			c.hub.logger.Warn("disconnecting slow feed client", "merchant_id", c.merchantID)
			c.conn.Close(ws.StatusPolicyViolation, "feed consumer too slow")
			return
		case <-ctx.Done():
			return
		}
	}
}
