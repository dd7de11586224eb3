package schema

import (
	"time"

	"gorm.io/datatypes"
)

// Notification represents the notifications table - ordered feed of committed ledger changes
type Notification struct {
	// Cursor is the gapless, strictly increasing position of the notification in the feed
	Cursor uint64 `gorm:"column:\"cursor\";primaryKey;autoIncrement:false"`
	// ID is the globally unique notification identifier (ULID)
	ID string `gorm:"column:id;not null;uniqueIndex;type:varchar(26)"`
	// Type is the notification type (issued, transfer_requested, ...)
	Type string `gorm:"column:type;not null;type:text;index:idx_notifications_type"`
	// TokenID is the token the notification relates to (nil for registry-level changes)
	TokenID *uint64 `gorm:"column:token_id;type:bigint;index:idx_notifications_token_id"`
	// Payload contains the facts of the change as JSON
	Payload datatypes.JSON `gorm:"column:payload;not null;type:jsonb"`
	// CreatedAt is the ledger timestamp of the change
	CreatedAt time.Time `gorm:"column:created_at;not null;type:timestamptz"`
}

// TableName specifies the table name for the Notification model
func (Notification) TableName() string {
	return "notifications"
}
