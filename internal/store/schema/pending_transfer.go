package schema

import (
	"time"
)

// PendingTransfer represents the pending_transfers table - at most one in-flight transfer per token
type PendingTransfer struct {
	// TokenID is the token under transfer
	TokenID uint64 `gorm:"column:token_id;primaryKey;autoIncrement:false"`
	// FromAddress is the owner at request time
	FromAddress string `gorm:"column:from_address;not null;type:text;index:idx_pending_transfers_from"`
	// ToAddress is the designated recipient
	ToAddress string `gorm:"column:to_address;not null;type:text;index:idx_pending_transfers_to"`
	// OwnerApproved is set once the owner has approved
	OwnerApproved bool `gorm:"column:owner_approved;not null;default:false"`
	// RecipientApproved is set once the recipient has approved
	RecipientApproved bool `gorm:"column:recipient_approved;not null;default:false"`
	// RequestedAt is when the transfer was requested
	RequestedAt time.Time `gorm:"column:requested_at;not null;type:timestamptz"`
}

// TableName specifies the table name for the PendingTransfer model
func (PendingTransfer) TableName() string {
	return "pending_transfers"
}
