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

	"github.com/loqalabs/loqa-transcribe/internal/config"
	"github.com/loqalabs/loqa-transcribe/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Client wraps a NATS connection used to publish transcripts.
type Client struct {
	conn    *nats.Conn
	subject string
	log     *slog.Logger
}

func Connect(ctx context.Context, cfg config.BusConfig, log *slog.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("loqa-transcribe"),
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
	if err := ctx.Err(); err != nil {
		conn.Close()
		return nil, err
	}

	subject := cfg.Subject
	if subject == "" {
		subject = protocol.SubjectTranscriptFinal
	}

	log.Info("connected to NATS", slog.String("servers", url), slog.String("subject", subject))

	return &Client{
		conn:    conn,
		subject: subject,
		log:     log,
	}, nil
}

// PublishTranscript sends t on the configured subject and waits for the
// server to acknowledge the flush.
func (c *Client) PublishTranscript(ctx context.Context, t protocol.Transcript) error {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	if err := c.conn.Publish(c.subject, data); err != nil {
		return fmt.Errorf("publish transcript: %w", err)
	}
	if err := c.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush transcript: %w", err)
	}
	return nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.log.Info("closing NATS connection")
	c.conn.Drain()
	c.conn.Close()
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

func (c *Client) Subject() string {
	return c.subject
}
