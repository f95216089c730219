package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ContagionRadar/internal/domain/models"
	drepo "ContagionRadar/internal/domain/repository"
	applogger "ContagionRadar/pkg/logger"

	"github.com/gorilla/websocket"
)

// Config describes the sentiment feed endpoint.
//
// The feed accepts {"type":"subscribe","symbol":"ETH"} frames and pushes
// {"type":"observation","data":[...]} frames. {"type":"error","msg":"..."}
// frames are logged; any other type is ignored.
type Config struct {
	URL               string
	APIKey            string
	Symbols           []string
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration
	BufferSize        int
}

type Option func(*Client)

func WithLogger(l *applogger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// Client is an ObservationStream over the feed WebSocket.
type Client struct {
	cfg Config
	log *applogger.Logger

	mu      sync.Mutex // guards conn
	writeMu sync.Mutex // gorilla allows one concurrent writer
	conn    *websocket.Conn

	connected atomic.Bool
	failures  atomic.Int32
	dropped   atomic.Int64
}

var _ drepo.ObservationStream = (*Client)(nil)

func New(cfg Config, opts ...Option) *Client {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = cfg.ReconnectDelay
	}
	c := &Client{cfg: cfg, log: applogger.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(applogger.String("component", "feed"))
	return c
}

func (c *Client) endpoint() (*url.URL, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("feed url: %w", err)
	}
	if c.cfg.APIKey != "" {
		q := u.Query()
		q.Set("token", c.cfg.APIKey)
		u.RawQuery = q.Encode()
	}
	return u, nil
}

func (c *Client) Connect(ctx context.Context) error {
	u, err := c.endpoint()
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	c.log.Info("connected", applogger.String("host", u.Host))
	return nil
}

func (c *Client) Subscribe(ctx context.Context) error {
	conn := c.current()
	if conn == nil {
		return errors.New("feed not connected")
	}
	for _, s := range c.cfg.Symbols {
		if err := c.write(conn, map[string]string{"type": "subscribe", "symbol": s}); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	c.log.Info("subscribed", applogger.Strings("symbols", c.cfg.Symbols))
	return nil
}

type frame struct {
	Type string        `json:"type"`
	Msg  string        `json:"msg"`
	Data []observation `json:"data"`
}

type observation struct {
	Symbol    string   `json:"symbol"`
	Chain     string   `json:"chain"`
	Sector    string   `json:"sector"`
	Millis    int64    `json:"t"`
	Sentiment float64  `json:"sentiment"`
	Volume    float64  `json:"volume"`
	Price     *float64 `json:"price"`
}

func (o observation) model() *models.AssetObservation {
	return &models.AssetObservation{
		Symbol:    strings.TrimSpace(o.Symbol),
		Chain:     o.Chain,
		Sector:    o.Sector,
		Timestamp: time.UnixMilli(o.Millis).UTC(),
		Sentiment: o.Sentiment,
		Volume:    o.Volume,
		Price:     o.Price,
	}
}

// Read streams observations until ctx ends or the connection fails; a
// failure is sent on the error channel before both channels close. When the
// output buffer is full observations are dropped rather than blocking the
// socket.
func (c *Client) Read(ctx context.Context) (<-chan *models.AssetObservation, <-chan error) {
	out := make(chan *models.AssetObservation, c.cfg.BufferSize)
	errs := make(chan error, 1)
	conn := c.current()
	if conn == nil {
		errs <- errors.New("feed not connected")
		close(out)
		close(errs)
		return out, errs
	}
	if c.cfg.PingInterval > 0 {
		go c.keepalive(ctx, conn)
	}

	go func() {
		defer close(out)
		defer close(errs)
		for ctx.Err() == nil {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				c.connected.Store(false)
				if ctx.Err() == nil {
					errs <- fmt.Errorf("feed read: %w", err)
				}
				return
			}
			c.failures.Store(0)

			var f frame
			if err := json.Unmarshal(raw, &f); err != nil {
				continue
			}
			switch f.Type {
			case "error":
				c.log.Warn("feed error frame", applogger.String("msg", f.Msg))
			case "observation":
				for _, o := range f.Data {
					select {
					case out <- o.model():
					case <-ctx.Done():
						return
					default:
						c.dropped.Add(1)
					}
				}
			}
		}
	}()
	return out, errs
}

func (c *Client) keepalive(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(c.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// nextDelay doubles the reconnect delay per consecutive failure, capped at
// MaxReconnectDelay. A frame read successfully resets it.
func (c *Client) nextDelay() time.Duration {
	n := c.failures.Add(1) - 1
	d := c.cfg.ReconnectDelay
	for i := int32(0); i < n && d < c.cfg.MaxReconnectDelay; i++ {
		d *= 2
	}
	if d > c.cfg.MaxReconnectDelay {
		d = c.cfg.MaxReconnectDelay
	}
	return d
}

func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	delay := c.nextDelay()
	c.log.Info("reconnecting", applogger.Duration("delay", delay))
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

func (c *Client) Close() error {
	c.connected.Store(false)
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *Client) IsConnected() bool { return c.connected.Load() }

// Dropped counts observations lost to a full buffer.
func (c *Client) Dropped() int64 { return c.dropped.Load() }

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) write(conn *websocket.Conn, v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}
