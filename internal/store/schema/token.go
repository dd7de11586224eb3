package schema

import (
	"time"
)

// Token represents the tokens table - one row per issued certified asset
type Token struct {
	// ID is the sequential token identifier, starting at 1 and never reused
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement:false"`
	// Owner is the current owner's address (checksummed hex)
	Owner string `gorm:"column:owner;not null;type:text;index:idx_tokens_owner"`
	// MetadataRef is the opaque metadata reference supplied at issuance
	MetadataRef string `gorm:"column:metadata_ref;not null;type:text"`
	// IssuedAt is the issuance timestamp
	IssuedAt time.Time `gorm:"column:issued_at;not null;type:timestamptz"`
	// IssuingAgent is the address of the administrator or shop that issued the token
	IssuingAgent string `gorm:"column:issuing_agent;not null;type:text"`
	// SerialHash is the bound serial content hash (nil until bound, immutable afterwards)
	SerialHash *string `gorm:"column:serial_hash;type:text;uniqueIndex:idx_tokens_serial_hash"`
	// CreatedAt is the timestamp when this record was written
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`

	// Associations
	History         []TransferHistory `gorm:"foreignKey:TokenID;constraint:OnDelete:CASCADE"`
	PendingTransfer *PendingTransfer  `gorm:"foreignKey:TokenID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the Token model
func (Token) TableName() string {
	return "tokens"
}
