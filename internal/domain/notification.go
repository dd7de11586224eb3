package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NotificationType is the kind of committed state change carried by a notification
type NotificationType string

const (
	NotificationTypeIssued                    NotificationType = "issued"
	NotificationTypeSerialSet                 NotificationType = "serial_set"
	NotificationTypeShopAuthorized            NotificationType = "shop_authorized"
	NotificationTypeShopRevoked               NotificationType = "shop_revoked"
	NotificationTypeAdminTransferred          NotificationType = "admin_transferred"
	NotificationTypeTransferRequested         NotificationType = "transfer_requested"
	NotificationTypeTransferOwnerApproved     NotificationType = "transfer_owner_approved"
	NotificationTypeTransferRecipientApproved NotificationType = "transfer_recipient_approved"
	NotificationTypeTransferExecuted          NotificationType = "transfer_executed"
	NotificationTypeOwnershipChanged          NotificationType = "ownership_changed"
	NotificationTypeTransferCancelled         NotificationType = "transfer_cancelled"
)

// AllNotificationTypes lists every notification type in declaration order
var AllNotificationTypes = []NotificationType{
	NotificationTypeIssued,
	NotificationTypeSerialSet,
	NotificationTypeShopAuthorized,
	NotificationTypeShopRevoked,
	NotificationTypeAdminTransferred,
	NotificationTypeTransferRequested,
	NotificationTypeTransferOwnerApproved,
	NotificationTypeTransferRecipientApproved,
	NotificationTypeTransferExecuted,
	NotificationTypeOwnershipChanged,
	NotificationTypeTransferCancelled,
}

// IsValidNotificationType checks if a notification type is known
func IsValidNotificationType(t NotificationType) bool {
	for _, known := range AllNotificationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// NotificationPayload holds the facts of a notification. Unused fields are omitted.
type NotificationPayload struct {
	From        *common.Address `json:"from,omitempty"`
	To          *common.Address `json:"to,omitempty"`
	Actor       *common.Address `json:"actor,omitempty"`
	Shop        *common.Address `json:"shop,omitempty"`
	Authorized  *bool           `json:"authorized,omitempty"`
	SerialHash  *common.Hash    `json:"serial_hash,omitempty"`
	MetadataRef string          `json:"metadata_ref,omitempty"`
}

// Notification is an observable record of a committed state change.
// Cursor is assigned by the store and is gapless and strictly increasing.
type Notification struct {
	Cursor    uint64
	ID        string
	Type      NotificationType
	TokenID   *TokenID
	Payload   NotificationPayload
	CreatedAt time.Time
}

// NotificationFilter selects notifications from the feed
type NotificationFilter struct {
	// Anchor returns notifications with a cursor strictly greater than it
	Anchor  uint64
	Limit   int
	TokenID *TokenID
	Types   []NotificationType
}
