package schema

import (
	"time"
)

// TransferHistory represents the transfer_history table - append-only custody trail of a token
type TransferHistory struct {
	// ID is an auto-incrementing sequence number that preserves append order
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// TokenID references the token this entry belongs to
	TokenID uint64 `gorm:"column:token_id;not null;index:idx_transfer_history_token_id"`
	// FromAddress is the previous owner (nil for the issuance entry)
	FromAddress *string `gorm:"column:from_address;type:text"`
	// ToAddress is the new owner
	ToAddress string `gorm:"column:to_address;not null;type:text"`
	// Timestamp is when the custody change was committed
	Timestamp time.Time `gorm:"column:timestamp;not null;type:timestamptz"`
}

// TableName specifies the table name for the TransferHistory model
func (TransferHistory) TableName() string {
	return "transfer_history"
}
