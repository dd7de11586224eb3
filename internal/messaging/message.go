package messaging

import (
	"time"

	"github.com/feral-file/ff-custody-ledger/internal/domain"
)

// NotificationMessage is the wire form of a notification shared by every publisher
type NotificationMessage struct {
	Cursor    uint64                     `json:"cursor"`
	ID        string                     `json:"id"`
	Type      domain.NotificationType    `json:"type"`
	TokenID   *string                    `json:"token_id,omitempty"`
	Payload   domain.NotificationPayload `json:"payload"`
	CreatedAt time.Time                  `json:"created_at"`
}

// NewNotificationMessage converts a notification to its wire form
func NewNotificationMessage(n *domain.Notification) NotificationMessage {
	msg := NotificationMessage{
		Cursor:    n.Cursor,
		ID:        n.ID,
		Type:      n.Type,
		Payload:   n.Payload,
		CreatedAt: n.CreatedAt.UTC(),
	}
	if n.TokenID != nil {
		id := n.TokenID.String()
		msg.TokenID = &id
	}
	return msg
}
