package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
)

// NATSPublisher publishes notices as JSON on a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher connects to url. The connection reconnects on its own;
// notices published while disconnected are buffered by the client.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	if subject == "" {
		return nil, ferrors.ConfigError("events subject is required").Build()
	}
	conn, err := nats.Connect(url,
		nats.Name("assetpipe"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", logfields.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("NATS reconnected", logfields.URL(c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to connect to NATS").
			WithContext("url", url).
			Retryable().
			Build()
	}
	slog.Info("Publishing task notices", logfields.URL(url), slog.String("subject", subject))
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, n Notice) error {
	data, err := json.Marshal(n)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to encode notice").Build()
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to publish notice").
			WithContext("subject", p.subject).
			Build()
	}
	if err := p.conn.FlushWithContext(ctx); err != nil && p.conn.IsConnected() {
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to flush notice").
			WithContext("subject", p.subject).
			Build()
	}
	slog.Debug("Published task notice", logfields.Task(n.Task), slog.String("status", n.Status))
	return nil
}

// Close drains pending notices and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to drain NATS connection").Build()
	}
	return nil
}
