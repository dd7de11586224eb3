package store

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-custody-ledger/internal/domain"
)

// CreateTokenInput represents the data needed to create a token
type CreateTokenInput struct {
	Owner        common.Address
	MetadataRef  string
	IssuedAt     time.Time
	IssuingAgent common.Address
}

// View is a consistent read-only snapshot of the ledger state.
// Getters return (nil, nil) when the record does not exist.
type View interface {
	// GetToken retrieves a token by its ID
	GetToken(id domain.TokenID) (*domain.Token, error)
	// CountTokens returns the number of issued tokens
	CountTokens() (uint64, error)
	// GetTokenHistory returns the custody history of a token in append order
	GetTokenHistory(id domain.TokenID) ([]domain.HistoryEntry, error)
	// GetTokenIDsByOwner returns the IDs of the tokens currently owned by the address in ascending order
	GetTokenIDsByOwner(owner common.Address) ([]domain.TokenID, error)
	// GetTokenIDBySerial resolves a serial hash to the bound token
	GetTokenIDBySerial(hash common.Hash) (*domain.TokenID, error)
	// GetPendingTransfer retrieves the pending transfer of a token
	GetPendingTransfer(id domain.TokenID) (*domain.PendingTransfer, error)
	// GetPendingTransfersByAddress returns pending transfers in which the address is sender or recipient
	GetPendingTransfersByAddress(address common.Address) ([]domain.PendingTransfer, error)
	// IsShopAuthorized reports whether the address is an authorized shop
	IsShopAuthorized(address common.Address) (bool, error)
	// ListAuthorizedShops returns all authorized shops in address order
	ListAuthorizedShops() ([]common.Address, error)
	// GetAdmin returns the current administrator (nil before bootstrap)
	GetAdmin() (*common.Address, error)
}

// Tx is a read-write unit of work. Every change made through a Tx commits or rolls back together.
type Tx interface {
	View

	// CreateToken creates a token with the next sequential ID
	CreateToken(input CreateTokenInput) (*domain.Token, error)
	// UpdateTokenOwner sets the current owner of a token
	UpdateTokenOwner(id domain.TokenID, owner common.Address) error
	// SetTokenSerial binds a serial hash to a token
	SetTokenSerial(id domain.TokenID, hash common.Hash) error
	// AppendHistory appends a custody history entry
	AppendHistory(entry domain.HistoryEntry) error
	// PutPendingTransfer creates or replaces the pending transfer of a token
	PutPendingTransfer(pending domain.PendingTransfer) error
	// DeletePendingTransfer removes the pending transfer of a token
	DeletePendingTransfer(id domain.TokenID) error
	// AuthorizeShop adds the address to the authorized shops
	AuthorizeShop(address common.Address, authorizedBy common.Address) error
	// RevokeShop removes the address from the authorized shops
	RevokeShop(address common.Address) error
	// SetAdmin replaces the administrator
	SetAdmin(address common.Address) error
	// AppendNotification appends a notification and assigns its cursor
	AppendNotification(notification *domain.Notification) error
}

// Store defines the interface for ledger persistence
type Store interface {
	// RunInTransaction runs fn in a serialized read-write transaction.
	// All changes are discarded when fn returns an error.
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn against a consistent read-only snapshot
	View(ctx context.Context, fn func(v View) error) error
	// GetNotifications retrieves notifications after the anchor cursor with the total matching count
	GetNotifications(ctx context.Context, filter domain.NotificationFilter) ([]*domain.Notification, uint64, error)
	// GetLatestNotificationCursor returns the cursor of the last committed notification (0 when empty)
	GetLatestNotificationCursor(ctx context.Context) (uint64, error)
	// SetKeyValue sets a key-value pair in the key-value store
	SetKeyValue(ctx context.Context, key string, value string) error
	// GetKeyValue retrieves a value by key from the key-value store ("" when absent)
	GetKeyValue(ctx context.Context, key string) (string, error)
}
