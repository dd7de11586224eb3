package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/feral-file/ff-custody-ledger/internal/adapter"
	"github.com/feral-file/ff-custody-ledger/internal/domain"
	"github.com/feral-file/ff-custody-ledger/internal/logger"
	"github.com/feral-file/ff-custody-ledger/internal/messaging"
	"github.com/feral-file/ff-custody-ledger/internal/metrics"
	"github.com/feral-file/ff-custody-ledger/internal/store"
)

// Config holds the configuration for the notification relay
type Config struct {
	Name            string        // Cursor key suffix; one cursor per relay
	StartCursor     uint64        // Deliver after this cursor, ignoring the saved cursor (0 to resume)
	StartFromLatest bool          // Skip the backlog when no cursor has been saved
	CursorSaveFreq  uint64        // Save cursor every N notifications
	CursorSaveDelay time.Duration // Or save cursor every N seconds

	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

// Relay defines the interface for the notification relay
type Relay interface {
	// Run delivers notifications until the context is cancelled
	Run(ctx context.Context) error
	// Close closes the relay and cleans up resources
	Close()
}

// relay tails the ledger outbox and publishes every notification to each publisher in order
type relay struct {
	subscriber messaging.Subscriber
	publishers []messaging.Publisher
	cursors    store.CursorStore
	config     Config
	clock      adapter.Clock
}

// NewRelay creates a new notification relay
func NewRelay(
	sub messaging.Subscriber,
	pubs []messaging.Publisher,
	cursors store.CursorStore,
	cfg Config,
	clock adapter.Clock,
) Relay {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.CursorSaveFreq == 0 {
		cfg.CursorSaveFreq = 1
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = time.Second
	}
	if cfg.RetryMaxInterval <= 0 {
		cfg.RetryMaxInterval = time.Minute
	}

	return &relay{
		subscriber: sub,
		publishers: pubs,
		cursors:    cursors,
		config:     cfg,
		clock:      clock,
	}
}

// Run starts the relay
func (r *relay) Run(ctx context.Context) error {
	startCursor, err := r.startCursor(ctx)
	if err != nil {
		return err
	}

	lastSavedCursor := startCursor
	lastDelivered := startCursor
	lastSaveTime := r.clock.Now()

	saveCursor := func(ctx context.Context, cursor uint64) {
		if err := r.cursors.SetRelayCursor(ctx, r.config.Name, cursor); err != nil {
			logger.ErrorCtx(ctx, fmt.Errorf("failed to save relay cursor: %w", err), zap.Uint64("cursor", cursor))
			return
		}
		lastSavedCursor = cursor
		lastSaveTime = r.clock.Now()
	}

	handler := func(n *domain.Notification) error {
		for _, pub := range r.publishers {
			if err := r.publishWithRetry(ctx, pub, n); err != nil {
				return fmt.Errorf("failed to publish notification %d to %s: %w", n.Cursor, pub.Name(), err)
			}
		}
		lastDelivered = n.Cursor
		metrics.SetRelayCursor(r.config.Name, n.Cursor)

		// Save cursor periodically (every N notifications or N seconds)
		shouldSave := n.Cursor-lastSavedCursor >= r.config.CursorSaveFreq ||
			r.clock.Since(lastSaveTime) >= r.config.CursorSaveDelay
		if shouldSave {
			saveCursor(ctx, n.Cursor)
		}
		return nil
	}

	logger.InfoCtx(ctx, "Starting notification relay",
		zap.String("relay", r.config.Name),
		zap.Uint64("cursor", startCursor),
		zap.Int("publishers", len(r.publishers)))

	err = r.subscriber.SubscribeNotifications(ctx, startCursor, handler)

	// Persist progress made since the last periodic save
	if lastDelivered > lastSavedCursor {
		saveCursor(context.WithoutCancel(ctx), lastDelivered)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// startCursor resolves where delivery begins
func (r *relay) startCursor(ctx context.Context) (uint64, error) {
	if r.config.StartCursor > 0 {
		logger.InfoCtx(ctx, "Starting from configured cursor", zap.String("relay", r.config.Name), zap.Uint64("cursor", r.config.StartCursor))
		return r.config.StartCursor, nil
	}

	saved, err := r.cursors.GetRelayCursor(ctx, r.config.Name)
	if err != nil {
		return 0, fmt.Errorf("failed to get relay cursor: %w", err)
	}
	if saved > 0 {
		logger.InfoCtx(ctx, "Resuming from last delivered notification", zap.String("relay", r.config.Name), zap.Uint64("cursor", saved))
		return saved, nil
	}

	if r.config.StartFromLatest {
		latest, err := r.subscriber.GetLatestCursor(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to get latest cursor: %w", err)
		}
		logger.InfoCtx(ctx, "Starting from latest notification", zap.String("relay", r.config.Name), zap.Uint64("cursor", latest))
		return latest, nil
	}

	return 0, nil
}

// publishWithRetry publishes with exponential backoff until success or cancellation
func (r *relay) publishWithRetry(ctx context.Context, pub messaging.Publisher, n *domain.Notification) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.config.RetryInitialInterval
	b.MaxInterval = r.config.RetryMaxInterval
	b.MaxElapsedTime = 0 // Never give up: the feed order must be preserved
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.5

	operation := func() error {
		return pub.PublishNotification(ctx, n)
	}

	var attemptCount int
	notifyOnError := func(err error, duration time.Duration) {
		attemptCount++
		metrics.RecordRelayPublish(pub.Name(), "retry")
		logger.WarnCtx(ctx, "Notification publish failed, retrying",
			zap.Error(err),
			zap.String("publisher", pub.Name()),
			zap.Uint64("cursor", n.Cursor),
			zap.Int("attempt", attemptCount),
			zap.Duration("next_retry_in", duration),
		)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notifyOnError); err != nil {
		metrics.RecordRelayPublish(pub.Name(), "failed")
		return err
	}

	metrics.RecordRelayPublish(pub.Name(), "success")
	return nil
}

// Close closes the relay and its publishers
func (r *relay) Close() {
	r.subscriber.Close()
	for _, pub := range r.publishers {
		pub.Close()
	}
}
