package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-custody-ledger/internal/domain"
	"github.com/feral-file/ff-custody-ledger/internal/store"
)

// Issue mints a token to req.To. Serial binding, when requested, is part of the same atomic unit.
func (l *ledger) Issue(ctx context.Context, caller common.Address, req IssueRequest) (domain.TokenID, error) {
	var issued domain.TokenID
	err := l.submit(ctx, "issue", func(w *writeTx) error {
		ok, err := isIssuer(w, caller)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrUnauthorizedIssuance
		}
		if err := l.validateIdentity(req.To); err != nil {
			return err
		}
		if req.SerialHash != nil && *req.SerialHash == (common.Hash{}) {
			return domain.ErrInvalidSerialHash
		}

		token, err := w.CreateToken(store.CreateTokenInput{
			Owner:        req.To,
			MetadataRef:  req.MetadataRef,
			IssuedAt:     w.now,
			IssuingAgent: caller,
		})
		if err != nil {
			return err
		}

		if err := w.AppendHistory(domain.HistoryEntry{
			TokenID:   token.ID,
			To:        req.To,
			Timestamp: w.now,
		}); err != nil {
			return err
		}

		if err := w.emit(domain.NotificationTypeIssued, tokenRef(token.ID), domain.NotificationPayload{
			To:          addressRef(req.To),
			Actor:       addressRef(caller),
			MetadataRef: req.MetadataRef,
		}); err != nil {
			return err
		}

		if req.SerialHash != nil {
			if err := w.bindSerial(token, *req.SerialHash, caller); err != nil {
				return err
			}
		}

		issued = token.ID
		return nil
	})
	if err != nil {
		return 0, err
	}

	return issued, nil
}

// GetToken returns the token record
func (l *ledger) GetToken(ctx context.Context, tokenID domain.TokenID) (*domain.Token, error) {
	var token *domain.Token
	err := l.view(ctx, func(v store.View) error {
		var err error
		token, err = getToken(v, tokenID)
		return err
	})
	return token, err
}

// GetMetadata returns the immutable issuance metadata of the token
func (l *ledger) GetMetadata(ctx context.Context, tokenID domain.TokenID) (*domain.TokenMetadata, error) {
	token, err := l.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	metadata := token.Metadata()
	return &metadata, nil
}

// GetHistory returns the custody history in chronological order, starting with the issuance entry
func (l *ledger) GetHistory(ctx context.Context, tokenID domain.TokenID) ([]domain.HistoryEntry, error) {
	var history []domain.HistoryEntry
	err := l.view(ctx, func(v store.View) error {
		if _, err := getToken(v, tokenID); err != nil {
			return err
		}

		var err error
		history, err = v.GetTokenHistory(tokenID)
		if err != nil {
			return err
		}
		if len(history) == 0 || !history[0].IsIssuance() {
			return fmt.Errorf("token %d has no issuance entry", tokenID)
		}
		return nil
	})
	return history, err
}

// TokensOwnedBy returns the IDs of the tokens currently owned by owner in ascending order
func (l *ledger) TokensOwnedBy(ctx context.Context, owner common.Address) ([]domain.TokenID, error) {
	if domain.IsZeroAddress(owner) {
		return nil, fmt.Errorf("%w: null identity", domain.ErrInvalidAddress)
	}

	var ids []domain.TokenID
	err := l.view(ctx, func(v store.View) error {
		var err error
		ids, err = v.GetTokenIDsByOwner(owner)
		return err
	})
	return ids, err
}
