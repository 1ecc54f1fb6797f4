package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"candle-stream/internal/market"
	"candle-stream/internal/wire"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Client subscribes to a candle stream and reconnects after the server goes
// away. Every update, including the ack, is passed to the handler.
type Client struct {
	url            string
	subprotocol    string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func New(url, subprotocol string, reconnectDelay, pingInterval time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		url:            url,
		subprotocol:    subprotocol,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log,
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	var opts *websocket.DialOptions
	if c.subprotocol != "" {
		opts = &websocket.DialOptions{Subprotocols: []string{c.subprotocol}}
	}
	conn, _, err := websocket.Dial(ctx, c.url, opts)
	if err != nil {
		return err
	}
	c.conn = conn
	c.log.Info("stream connected", zap.String("url", c.url), zap.String("subprotocol", conn.Subprotocol()))
	return nil
}

func (c *Client) Run(ctx context.Context, handler func(market.PriceUpdate)) error {
	for {
		if err := c.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("stream connect failed", zap.Error(err))
		} else {
			pingCtx, cancel := context.WithCancel(ctx)
			pingDone := make(chan struct{})
			go func() {
				defer close(pingDone)
				c.pingLoop(pingCtx)
			}()
			err = c.readLoop(ctx, handler)
			cancel()
			<-pingDone
			if ctx.Err() != nil {
				c.resetConn()
				return ctx.Err()
			}
			c.logReadLoopError(err)
			c.resetConn()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *Client) readLoop(ctx context.Context, handler func(market.PriceUpdate)) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("stream not connected")
	}
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		update, err := wire.Decode(typ, data)
		if err != nil {
			c.log.Warn("dropping undecodable update", zap.Int("bytes", len(data)), zap.Error(err))
			continue
		}
		if handler != nil {
			handler(update)
		}
	}
}

// pingLoop sends transport pings; the pong is consumed by readLoop.
func (c *Client) pingLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	interval := c.pingInterval
	c.mu.Unlock()
	if conn == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					c.log.Warn("stream ping failed", zap.Error(err))
				}
				return
			}
		}
	}
}

func (c *Client) logReadLoopError(err error) {
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		var closeErr websocket.CloseError
		if errors.As(err, &closeErr) {
			c.log.Info("stream closed by server", zap.Int("status", int(closeErr.Code)), zap.String("reason", closeErr.Reason))
			return
		}
	}
	c.log.Warn("stream read loop ended", zap.Error(err))
}

func (c *Client) resetConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "reset")
		c.conn = nil
	}
}
