package messaging

import (
	"context"

	"github.com/feral-file/ff-custody-ledger/internal/domain"
)

// Publisher defines the interface for delivering ledger notifications to an external sink
//
//go:generate mockgen -source=publisher.go -destination=../mocks/publisher.go -package=mocks -mock_names=Publisher=MockPublisher
type Publisher interface {
	// Name identifies the publisher in logs, metrics and cursor keys
	Name() string
	// PublishNotification delivers one notification. Delivery is at-least-once;
	// consumers deduplicate on the notification id.
	PublishNotification(ctx context.Context, notification *domain.Notification) error
	// Close closes the connection
	Close()
}
