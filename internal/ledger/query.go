package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-custody-ledger/internal/domain"
	"github.com/feral-file/ff-custody-ledger/internal/store"
)

// Info describes the registry
func (l *ledger) Info(ctx context.Context) (*domain.RegistryInfo, error) {
	info := &domain.RegistryInfo{
		Name:            l.cfg.Name,
		Symbol:          l.cfg.Symbol,
		Chain:           l.cfg.Chain,
		RegistryAddress: l.cfg.RegistryAddress,
	}

	err := l.view(ctx, func(v store.View) error {
		admin, err := v.GetAdmin()
		if err != nil {
			return err
		}
		if admin != nil {
			info.Admin = *admin
		}

		info.TotalIssued, err = v.CountTokens()
		return err
	})
	if err != nil {
		return nil, err
	}

	return info, nil
}

// Exists reports whether the token has been issued
func (l *ledger) Exists(ctx context.Context, tokenID domain.TokenID) (bool, error) {
	var exists bool
	err := l.view(ctx, func(v store.View) error {
		token, err := v.GetToken(tokenID)
		exists = token != nil
		return err
	})
	return exists, err
}

// OwnerOf returns the current owner of the token
func (l *ledger) OwnerOf(ctx context.Context, tokenID domain.TokenID) (common.Address, error) {
	token, err := l.GetToken(ctx, tokenID)
	if err != nil {
		return common.Address{}, err
	}
	return token.Owner, nil
}

// TotalIssued returns the number of issued tokens
func (l *ledger) TotalIssued(ctx context.Context) (uint64, error) {
	var total uint64
	err := l.view(ctx, func(v store.View) error {
		var err error
		total, err = v.CountTokens()
		return err
	})
	return total, err
}

// HasPendingTransfer reports whether the token is in the Pending state
func (l *ledger) HasPendingTransfer(ctx context.Context, tokenID domain.TokenID) (bool, error) {
	status, err := l.GetTransferStatus(ctx, tokenID)
	if err != nil {
		return false, err
	}
	return status.State == domain.TransferStatePending, nil
}

// GetPendingTransfer returns the pending record, or a zeroed record when the token is Idle
func (l *ledger) GetPendingTransfer(ctx context.Context, tokenID domain.TokenID) (domain.PendingTransfer, error) {
	status, err := l.GetTransferStatus(ctx, tokenID)
	if err != nil {
		return domain.PendingTransfer{}, err
	}
	return status.Pending, nil
}

// GetTransferStatus returns the explicit protocol state of the token
func (l *ledger) GetTransferStatus(ctx context.Context, tokenID domain.TokenID) (domain.TransferStatus, error) {
	var status domain.TransferStatus
	err := l.view(ctx, func(v store.View) error {
		var err error
		status, err = transferStatus(v, tokenID)
		return err
	})
	return status, err
}

// GetTokenState returns the token and its transfer status from a single snapshot
func (l *ledger) GetTokenState(ctx context.Context, tokenID domain.TokenID) (*domain.Token, domain.TransferStatus, error) {
	var token *domain.Token
	var status domain.TransferStatus
	err := l.view(ctx, func(v store.View) error {
		var err error
		token, err = getToken(v, tokenID)
		if err != nil {
			return err
		}
		status, err = transferStatus(v, tokenID)
		return err
	})
	if err != nil {
		return nil, domain.TransferStatus{}, err
	}
	return token, status, nil
}

// PendingTransfersFor returns the pending transfers in which address is the sender or the recipient
func (l *ledger) PendingTransfersFor(ctx context.Context, address common.Address) ([]domain.PendingTransfer, error) {
	var transfers []domain.PendingTransfer
	err := l.view(ctx, func(v store.View) error {
		var err error
		transfers, err = v.GetPendingTransfersByAddress(address)
		return err
	})
	return transfers, err
}

// GetNotifications pages the notification feed
func (l *ledger) GetNotifications(ctx context.Context, filter domain.NotificationFilter) ([]*domain.Notification, uint64, error) {
	return l.store.GetNotifications(ctx, filter)
}
