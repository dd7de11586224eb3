package messaging

import (
	"context"

	"github.com/feral-file/ff-custody-ledger/internal/domain"
)

// NotificationHandler is called for each notification in cursor order.
// Returning an error stops the subscription.
type NotificationHandler func(notification *domain.Notification) error

// Subscriber defines the interface for tailing the ledger notification feed
//
//go:generate mockgen -source=subscriber.go -destination=../mocks/subscriber.go -package=mocks -mock_names=Subscriber=MockSubscriber
type Subscriber interface {
	// SubscribeNotifications delivers notifications with a cursor greater than afterCursor
	// until the context ends or the handler fails
	SubscribeNotifications(ctx context.Context, afterCursor uint64, handler NotificationHandler) error

	// GetLatestCursor returns the cursor of the last committed notification
	GetLatestCursor(ctx context.Context) (uint64, error)

	// Close releases the subscriber
	Close()
}
