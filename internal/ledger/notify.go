package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/oklog/ulid/v2"

	"github.com/feral-file/ff-custody-ledger/internal/domain"
	"github.com/feral-file/ff-custody-ledger/internal/store"
)

// writeTx is the state of one write operation: the store transaction, its timestamp and the outbox
type writeTx struct {
	store.Tx

	ctx           context.Context
	l             *ledger
	now           time.Time
	notifications []*domain.Notification
}

func (l *ledger) newWriteTx(ctx context.Context, tx store.Tx) *writeTx {
	return &writeTx{
		Tx:  tx,
		ctx: ctx,
		l:   l,
		now: l.now(),
	}
}

// emit appends a notification to the outbox within the current transaction
func (w *writeTx) emit(t domain.NotificationType, tokenID *domain.TokenID, payload domain.NotificationPayload) error {
	id, err := ulid.New(ulid.Timestamp(w.now), w.l.entropy)
	if err != nil {
		return fmt.Errorf("failed to generate notification id: %w", err)
	}

	n := &domain.Notification{
		ID:        id.String(),
		Type:      t,
		TokenID:   tokenID,
		Payload:   payload,
		CreatedAt: w.now,
	}
	if err := w.AppendNotification(n); err != nil {
		return err
	}

	w.notifications = append(w.notifications, n)
	return nil
}

// requireAdmin fails with ErrUnauthorized unless caller is the administrator
func (w *writeTx) requireAdmin(caller common.Address) error {
	ok, err := isAdmin(w, caller)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrUnauthorized
	}
	return nil
}

// getToken returns the token or ErrTokenNotFound
func getToken(v store.View, tokenID domain.TokenID) (*domain.Token, error) {
	token, err := v.GetToken(tokenID)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, domain.ErrTokenNotFound
	}
	return token, nil
}

func tokenRef(id domain.TokenID) *domain.TokenID {
	return &id
}

func addressRef(a common.Address) *common.Address {
	return &a
}
