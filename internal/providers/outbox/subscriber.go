package outbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/feral-file/ff-custody-ledger/internal/adapter"
	"github.com/feral-file/ff-custody-ledger/internal/domain"
	"github.com/feral-file/ff-custody-ledger/internal/logger"
	"github.com/feral-file/ff-custody-ledger/internal/messaging"
)

// Config holds the configuration for tailing the notification outbox
type Config struct {
	BatchSize    int           // Notifications fetched per query
	PollInterval time.Duration // Upper bound on the delay before new notifications are seen
}

// Feed is the part of the store the subscriber reads
type Feed interface {
	GetNotifications(ctx context.Context, filter domain.NotificationFilter) ([]*domain.Notification, uint64, error)
	GetLatestNotificationCursor(ctx context.Context) (uint64, error)
}

type outboxSubscriber struct {
	feed   Feed
	config Config
	clock  adapter.Clock
	// wake is signalled by the ledger after commits; nil when the ledger runs in another process
	wake <-chan struct{}
	stop func()
}

// Option configures the subscriber
type Option func(*outboxSubscriber)

// WithWakeup makes the subscriber react to commit signals instead of waiting for the next poll.
// stop is called on Close to release the signal.
func WithWakeup(wake <-chan struct{}, stop func()) Option {
	return func(s *outboxSubscriber) {
		s.wake = wake
		s.stop = stop
	}
}

// NewSubscriber creates a subscriber that tails the outbox of a store
func NewSubscriber(cfg Config, feed Feed, clock adapter.Clock, opts ...Option) messaging.Subscriber {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	s := &outboxSubscriber{
		feed:   feed,
		config: cfg,
		clock:  clock,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubscribeNotifications pages through the outbox after afterCursor and then waits for new rows
func (s *outboxSubscriber) SubscribeNotifications(ctx context.Context, afterCursor uint64, handler messaging.NotificationHandler) error {
	cursor := afterCursor

	for {
		notifications, _, err := s.feed.GetNotifications(ctx, domain.NotificationFilter{
			Anchor: cursor,
			Limit:  s.config.BatchSize,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Transient store errors are retried on the next poll
			logger.ErrorCtx(ctx, fmt.Errorf("failed to read notifications: %w", err), zap.Uint64("cursor", cursor))
			notifications = nil
		}

		for _, n := range notifications {
			if err := handler(n); err != nil {
				return err
			}
			cursor = n.Cursor
		}

		// A full page means more rows are waiting
		if len(notifications) == s.config.BatchSize {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		case <-s.clock.After(s.config.PollInterval):
		}
	}
}

// GetLatestCursor returns the cursor of the last committed notification
func (s *outboxSubscriber) GetLatestCursor(ctx context.Context) (uint64, error) {
	cursor, err := s.feed.GetLatestNotificationCursor(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest notification cursor: %w", err)
	}
	return cursor, nil
}

// Close releases the commit signal
func (s *outboxSubscriber) Close() {
	if s.stop != nil {
		s.stop()
	}
}
