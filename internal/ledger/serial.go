package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-custody-ledger/internal/domain"
	"github.com/feral-file/ff-custody-ledger/internal/store"
)

// bindSerial binds hash to the token in both directions and emits serial_set
func (w *writeTx) bindSerial(token *domain.Token, hash common.Hash, actor common.Address) error {
	if hash == (common.Hash{}) {
		return domain.ErrInvalidSerialHash
	}
	if token.SerialHash != nil {
		return domain.ErrSerialAlreadySet
	}

	bound, err := w.GetTokenIDBySerial(hash)
	if err != nil {
		return err
	}
	if bound != nil {
		return domain.ErrSerialHashAlreadyExists
	}

	if err := w.SetTokenSerial(token.ID, hash); err != nil {
		return err
	}

	return w.emit(domain.NotificationTypeSerialSet, tokenRef(token.ID), domain.NotificationPayload{
		SerialHash: &hash,
		Actor:      addressRef(actor),
	})
}

// RegisterSerial binds a serial hash to an existing token. Administrator only; the binding is irreversible.
func (l *ledger) RegisterSerial(ctx context.Context, caller common.Address, tokenID domain.TokenID, hash common.Hash) error {
	return l.submit(ctx, "register_serial", func(w *writeTx) error {
		if err := w.requireAdmin(caller); err != nil {
			return err
		}
		if hash == (common.Hash{}) {
			return domain.ErrInvalidSerialHash
		}

		token, err := getToken(w, tokenID)
		if err != nil {
			return err
		}

		return w.bindSerial(token, hash, caller)
	})
}

// LookupBySerial resolves a serial hash to its token
func (l *ledger) LookupBySerial(ctx context.Context, hash common.Hash) (domain.TokenID, error) {
	if hash == (common.Hash{}) {
		return 0, domain.ErrInvalidSerialHash
	}

	var id domain.TokenID
	err := l.view(ctx, func(v store.View) error {
		bound, err := v.GetTokenIDBySerial(hash)
		if err != nil {
			return err
		}
		if bound == nil {
			return domain.ErrSerialNotFound
		}
		id = *bound
		return nil
	})
	return id, err
}

// SerialExists reports whether hash is bound. The zero digest is never bound.
func (l *ledger) SerialExists(ctx context.Context, hash common.Hash) (bool, error) {
	if hash == (common.Hash{}) {
		return false, nil
	}

	var exists bool
	err := l.view(ctx, func(v store.View) error {
		bound, err := v.GetTokenIDBySerial(hash)
		exists = bound != nil
		return err
	})
	return exists, err
}

// VerifySerial reports whether the token's bound serial equals hash
func (l *ledger) VerifySerial(ctx context.Context, tokenID domain.TokenID, hash common.Hash) (bool, error) {
	bound, err := l.SerialOf(ctx, tokenID)
	if err != nil {
		return false, err
	}
	return bound == hash, nil
}

// HasSerial reports whether the token has a bound serial
func (l *ledger) HasSerial(ctx context.Context, tokenID domain.TokenID) (bool, error) {
	var has bool
	err := l.view(ctx, func(v store.View) error {
		token, err := getToken(v, tokenID)
		if err != nil {
			return err
		}
		has = token.SerialHash != nil
		return nil
	})
	return has, err
}

// SerialOf returns the token's bound serial hash, or ErrSerialNotFound when none is bound
func (l *ledger) SerialOf(ctx context.Context, tokenID domain.TokenID) (common.Hash, error) {
	var hash common.Hash
	err := l.view(ctx, func(v store.View) error {
		token, err := getToken(v, tokenID)
		if err != nil {
			return err
		}
		if token.SerialHash == nil {
			return domain.ErrSerialNotFound
		}
		hash = *token.SerialHash
		return nil
	})
	return hash, err
}
