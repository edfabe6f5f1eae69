package bus

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/cheervox-labs/cheervox/internal/config"
)

// Client wraps a NATS connection with JSON publish/subscribe helpers for
// the pipeline's lifecycle subjects.
type Client struct {
	conn *nats.Conn
	log  *slog.Logger
}

func Connect(ctx context.Context, cfg config.BusConfig, log *slog.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("cheervox"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
	}

	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}
	if cfg.TLSInsecure {
		options = append(options, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", url))

	return &Client{conn: conn, log: log}, nil
}

// PublishJSON marshals msg and publishes it on subject. Publish failures
// are logged and swallowed: lifecycle events are advisory, the pipeline
// never blocks on them.
func (c *Client) PublishJSON(subject string, msg any) {
	if c == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Warn("marshal bus message", slog.String("subject", subject), slog.String("error", err.Error()))
		return
	}
	if err := c.conn.Publish(subject, data); err != nil {
		c.log.Warn("publish bus message", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}

// Subscribe registers handler for subject. The handler receives the raw
// payload; decoding is the caller's concern.
func (c *Client) Subscribe(subject string, handler func(data []byte)) (*nats.Subscription, error) {
	if c == nil {
		return nil, errors.New("bus client is nil")
	}
	return c.conn.Subscribe(subject, func(m *nats.Msg) {
		handler(m.Data)
	})
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.log.Info("closing NATS connection")
	c.conn.Drain()
	c.conn.Close()
}
