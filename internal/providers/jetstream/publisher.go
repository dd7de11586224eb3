package jetstream

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/feral-file/ff-custody-ledger/internal/adapter"
	"github.com/feral-file/ff-custody-ledger/internal/domain"
	"github.com/feral-file/ff-custody-ledger/internal/logger"
	"github.com/feral-file/ff-custody-ledger/internal/messaging"
)

// Config holds the configuration for NATS JetStream connection
type Config struct {
	URL            string
	StreamName     string
	SubjectPrefix  string        // Subjects are {prefix}.{notification_type}
	DedupWindow    time.Duration // Server-side deduplication window on Nats-Msg-Id
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectionName string
}

type publisher struct {
	nc            adapter.NatsConn
	js            adapter.JetStream
	subjectPrefix string
	json          adapter.JSON
}

// NewPublisher connects to NATS and declares the notification stream
func NewPublisher(ctx context.Context, cfg Config, natsJS adapter.NatsJetStream, jsonAdapter adapter.JSON) (messaging.Publisher, error) {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "ledger"
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 2 * time.Minute
	}

	opts := []nats.Option{
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Error(err, zap.String("message", "Disconnected from NATS"))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, js, err := natsJS.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS and create JetStream: %w", err)
	}

	err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       cfg.StreamName,
		Subjects:   []string{cfg.SubjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		Duplicates: cfg.DedupWindow,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream %s: %w", cfg.StreamName, err)
	}

	return &publisher{
		nc:            nc,
		js:            js,
		subjectPrefix: cfg.SubjectPrefix,
		json:          jsonAdapter,
	}, nil
}

// Name identifies the publisher
func (p *publisher) Name() string {
	return "jetstream"
}

// PublishNotification publishes a notification to NATS JetStream
func (p *publisher) PublishNotification(ctx context.Context, n *domain.Notification) error {
	logger.DebugCtx(ctx, "Publishing notification to NATS", zap.Uint64("cursor", n.Cursor), zap.String("type", string(n.Type)))

	data, err := p.json.Marshal(messaging.NewNotificationMessage(n))
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	// The notification id makes redelivery after a relay restart idempotent
	_, err = p.js.Publish(ctx, p.buildSubject(n), data, jetstream.WithMsgID(n.ID))
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	return nil
}

// buildSubject constructs the NATS subject based on the notification
func (p *publisher) buildSubject(n *domain.Notification) string {
	// Format: {prefix}.{type}
	// e.g., ledger.issued, ledger.ownership_changed
	return fmt.Sprintf("%s.%s", p.subjectPrefix, n.Type)
}

// Close closes the NATS connection
func (p *publisher) Close() {
	if p.nc == nil {
		return
	}
	p.nc.Close()
}
