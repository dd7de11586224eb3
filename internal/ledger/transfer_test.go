package ledger_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-custody-ledger/internal/domain"
)

func TestLedger_TransferHappyPath(t *testing.T) {
	tl := setupTestLedger(t)
	ctx := context.Background()
	id := tl.issue(t, collector, nil)

	require.NoError(t, tl.ledger.RequestTransfer(ctx, collector, id, other))

	status, err := tl.ledger.GetTransferStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatePending, status.State)
	assert.Equal(t, collector, status.Pending.From)
	assert.Equal(t, other, status.Pending.To)
	assert.True(t, status.Pending.OwnerApproved)
	assert.False(t, status.Pending.RecipientApproved)
	assert.Equal(t, tl.now, status.Pending.RequestedAt)

	// Ownership is unchanged while pending
	owner, err := tl.ledger.OwnerOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, collector, owner)

	pending, err := tl.ledger.PendingTransfersFor(ctx, other)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].TokenID)

	require.NoError(t, tl.ledger.ApproveReceive(ctx, other, id))

	owner, err = tl.ledger.OwnerOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, other, owner)

	hasPending, err := tl.ledger.HasPendingTransfer(ctx, id)
	require.NoError(t, err)
	assert.False(t, hasPending)

	record, err := tl.ledger.GetPendingTransfer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.PendingTransfer{TokenID: id}, record)

	history, err := tl.ledger.GetHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].IsIssuance())
	assert.Equal(t, collector, *history[1].From)
	assert.Equal(t, other, history[1].To)

	owned, err := tl.ledger.TokensOwnedBy(ctx, collector)
	require.NoError(t, err)
	assert.Empty(t, owned)

	owned, err = tl.ledger.TokensOwnedBy(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, []domain.TokenID{id}, owned)

	assert.Equal(t, []domain.NotificationType{
		domain.NotificationTypeAdminTransferred,
		domain.NotificationTypeIssued,
		domain.NotificationTypeTransferRequested,
		domain.NotificationTypeTransferOwnerApproved,
		domain.NotificationTypeTransferRecipientApproved,
		domain.NotificationTypeTransferExecuted,
		domain.NotificationTypeOwnershipChanged,
	}, tl.notificationTypes(t))
}

func TestLedger_RequestTransfer_Errors(t *testing.T) {
	tl := setupTestLedger(t)
	ctx := context.Background()
	id := tl.issue(t, collector, nil)

	tests := []struct {
		name    string
		caller  string
		tokenID domain.TokenID
		to      string
		wantErr error
	}{
		{"unknown token", collector.Hex(), 99, other.Hex(), domain.ErrTokenNotFound},
		{"not owner", other.Hex(), id, shop.Hex(), domain.ErrNotOwner},
		{"admin is not owner", admin.Hex(), id, shop.Hex(), domain.ErrNotOwner},
		{"null recipient", collector.Hex(), id, domain.ETHEREUM_ZERO_ADDRESS, domain.ErrInvalidAddress},
		{"registry recipient", collector.Hex(), id, registryAddr.Hex(), domain.ErrInvalidAddress},
		{"self transfer", collector.Hex(), id, collector.Hex(), domain.ErrInvalidAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller, err := domain.ParseAddress(tt.caller)
			require.NoError(t, err)
			to, err := domain.ParseAddress(tt.to)
			require.NoError(t, err)

			err = tl.ledger.RequestTransfer(ctx, caller, tt.tokenID, to)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("already pending", func(t *testing.T) {
		require.NoError(t, tl.ledger.RequestTransfer(ctx, collector, id, other))

		err := tl.ledger.RequestTransfer(ctx, collector, id, shop)
		assert.ErrorIs(t, err, domain.ErrTransferAlreadyPending)

		// The original request is untouched
		pending, err := tl.ledger.GetPendingTransfer(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, other, pending.To)
	})
}

func TestLedger_ApproveReceive_Errors(t *testing.T) {
	tl := setupTestLedger(t)
	ctx := context.Background()
	id := tl.issue(t, collector, nil)

	err := tl.ledger.ApproveReceive(ctx, other, id)
	assert.ErrorIs(t, err, domain.ErrTransferNotFound)

	err = tl.ledger.ApproveReceive(ctx, other, 99)
	assert.ErrorIs(t, err, domain.ErrTransferNotFound)

	require.NoError(t, tl.ledger.RequestTransfer(ctx, collector, id, other))

	for _, caller := range []struct {
		name string
		addr common.Address
	}{
		{"owner", collector},
		{"admin", admin},
		{"stranger", shop},
	} {
		t.Run(caller.name, func(t *testing.T) {
			err := tl.ledger.ApproveReceive(ctx, caller.addr, id)
			assert.ErrorIs(t, err, domain.ErrNotRecipient)
		})
	}

	owner, err := tl.ledger.OwnerOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, collector, owner)
}

func TestLedger_CancelTransfer(t *testing.T) {
	t.Run("by owner", func(t *testing.T) {
		tl := setupTestLedger(t)
		ctx := context.Background()
		id := tl.issue(t, collector, nil)

		require.NoError(t, tl.ledger.RequestTransfer(ctx, collector, id, other))
		require.NoError(t, tl.ledger.CancelTransfer(ctx, collector, id))

		status, err := tl.ledger.GetTransferStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.TransferStateIdle, status.State)

		owner, err := tl.ledger.OwnerOf(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, collector, owner)

		history, err := tl.ledger.GetHistory(ctx, id)
		require.NoError(t, err)
		assert.Len(t, history, 1)

		notifications, _, err := tl.ledger.GetNotifications(ctx, domain.NotificationFilter{
			Types: []domain.NotificationType{domain.NotificationTypeTransferCancelled},
		})
		require.NoError(t, err)
		require.Len(t, notifications, 1)
		assert.Equal(t, id, *notifications[0].TokenID)
		assert.Equal(t, collector, *notifications[0].Payload.From)
		assert.Equal(t, other, *notifications[0].Payload.To)

		// A fresh request is permitted immediately
		require.NoError(t, tl.ledger.RequestTransfer(ctx, collector, id, shop))
	})

	t.Run("by recipient", func(t *testing.T) {
		tl := setupTestLedger(t)
		ctx := context.Background()
		id := tl.issue(t, collector, nil)

		require.NoError(t, tl.ledger.RequestTransfer(ctx, collector, id, other))
		require.NoError(t, tl.ledger.CancelTransfer(ctx, other, id))

		err := tl.ledger.ApproveReceive(ctx, other, id)
		assert.ErrorIs(t, err, domain.ErrTransferNotFound)
	})

	t.Run("errors", func(t *testing.T) {
		tl := setupTestLedger(t)
		ctx := context.Background()
		id := tl.issue(t, collector, nil)

		err := tl.ledger.CancelTransfer(ctx, collector, id)
		assert.ErrorIs(t, err, domain.ErrTransferNotFound)

		require.NoError(t, tl.ledger.RequestTransfer(ctx, collector, id, other))

		err = tl.ledger.CancelTransfer(ctx, shop, id)
		assert.ErrorIs(t, err, domain.ErrUnauthorizedCancellation)

		// The administrator has no cancellation privilege
		err = tl.ledger.CancelTransfer(ctx, admin, id)
		assert.ErrorIs(t, err, domain.ErrUnauthorizedCancellation)
	})
}

func TestLedger_EmergencyTransfer(t *testing.T) {
	t.Run("discards pending transfer silently", func(t *testing.T) {
		tl := setupTestLedger(t)
		ctx := context.Background()
		id := tl.issue(t, collector, nil)

		require.NoError(t, tl.ledger.RequestTransfer(ctx, collector, id, other))
		require.NoError(t, tl.ledger.EmergencyTransfer(ctx, admin, collector, shop, id))

		owner, err := tl.ledger.OwnerOf(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, shop, owner)

		hasPending, err := tl.ledger.HasPendingTransfer(ctx, id)
		require.NoError(t, err)
		assert.False(t, hasPending)

		// The discarded recipient can no longer approve
		err = tl.ledger.ApproveReceive(ctx, other, id)
		assert.ErrorIs(t, err, domain.ErrTransferNotFound)

		history, err := tl.ledger.GetHistory(ctx, id)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, collector, *history[1].From)
		assert.Equal(t, shop, history[1].To)

		assert.Equal(t, []domain.NotificationType{
			domain.NotificationTypeAdminTransferred,
			domain.NotificationTypeIssued,
			domain.NotificationTypeTransferRequested,
			domain.NotificationTypeTransferOwnerApproved,
			domain.NotificationTypeOwnershipChanged,
		}, tl.notificationTypes(t))
	})

	t.Run("records asserted sender", func(t *testing.T) {
		tl := setupTestLedger(t)
		ctx := context.Background()
		id := tl.issue(t, collector, nil)

		require.NoError(t, tl.ledger.EmergencyTransfer(ctx, admin, other, shop, id))

		history, err := tl.ledger.GetHistory(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, other, *history[1].From)
	})

	t.Run("errors", func(t *testing.T) {
		tl := setupTestLedger(t)
		ctx := context.Background()
		id := tl.issue(t, collector, nil)

		err := tl.ledger.EmergencyTransfer(ctx, collector, collector, other, id)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)

		err = tl.ledger.EmergencyTransfer(ctx, admin, collector, other, 99)
		assert.ErrorIs(t, err, domain.ErrTokenNotFound)

		err = tl.ledger.EmergencyTransfer(ctx, admin, collector, registryAddr, id)
		assert.ErrorIs(t, err, domain.ErrInvalidAddress)
	})
}

func TestLedger_GetTokenState(t *testing.T) {
	tl := setupTestLedger(t)
	ctx := context.Background()
	id := tl.issue(t, collector, nil)

	token, status, err := tl.ledger.GetTokenState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, collector, token.Owner)
	assert.Equal(t, domain.TransferStateIdle, status.State)

	require.NoError(t, tl.ledger.RequestTransfer(ctx, collector, id, other))

	token, status, err = tl.ledger.GetTokenState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, collector, token.Owner)
	assert.Equal(t, domain.TransferStatePending, status.State)
	assert.Equal(t, other, status.Pending.To)

	require.NoError(t, tl.ledger.ApproveReceive(ctx, other, id))

	token, status, err = tl.ledger.GetTokenState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, other, token.Owner)
	assert.Equal(t, domain.TransferStateIdle, status.State)

	_, _, err = tl.ledger.GetTokenState(ctx, id+1)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}
