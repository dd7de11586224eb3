package ledger_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-custody-ledger/internal/domain"
	"github.com/feral-file/ff-custody-ledger/internal/ledger"
)

func TestLedger_Issue_ByShop(t *testing.T) {
	tl := setupTestLedger(t)
	ctx := context.Background()

	require.NoError(t, tl.ledger.SetShopAuthorization(ctx, admin, shop, true))

	id, err := tl.ledger.Issue(ctx, shop, ledger.IssueRequest{
		To:          collector,
		MetadataRef: "ipfs://x",
		SerialHash:  hashPtr(serialA),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TokenID(1), id)

	owner, err := tl.ledger.OwnerOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, collector, owner)

	bound, err := tl.ledger.LookupBySerial(ctx, serialA)
	require.NoError(t, err)
	assert.Equal(t, id, bound)

	token, err := tl.ledger.GetToken(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, shop, token.IssuingAgent)
	assert.Equal(t, tl.now, token.IssuedAt)
	assert.Equal(t, serialA, *token.SerialHash)

	metadata, err := tl.ledger.GetMetadata(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://x", metadata.MetadataRef)

	history, err := tl.ledger.GetHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].From)
	assert.Equal(t, collector, history[0].To)
	assert.Equal(t, tl.now, history[0].Timestamp)

	notifications, _, err := tl.ledger.GetNotifications(ctx, domain.NotificationFilter{TokenID: &id})
	require.NoError(t, err)
	require.Len(t, notifications, 2)
	assert.Equal(t, domain.NotificationTypeIssued, notifications[0].Type)
	assert.Equal(t, collector, *notifications[0].Payload.To)
	assert.Equal(t, shop, *notifications[0].Payload.Actor)
	assert.Equal(t, domain.NotificationTypeSerialSet, notifications[1].Type)
	assert.Equal(t, serialA, *notifications[1].Payload.SerialHash)
}

func TestLedger_Issue_SequentialIDs(t *testing.T) {
	tl := setupTestLedger(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		assert.Equal(t, domain.TokenID(i), tl.issue(t, collector, nil))
	}

	total, err := tl.ledger.TotalIssued(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), total)

	owned, err := tl.ledger.TokensOwnedBy(ctx, collector)
	require.NoError(t, err)
	assert.Equal(t, []domain.TokenID{1, 2, 3}, owned)

	exists, err := tl.ledger.Exists(ctx, 3)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = tl.ledger.Exists(ctx, 4)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLedger_Issue_Errors(t *testing.T) {
	zero := common.Hash{}

	tests := []struct {
		name    string
		caller  common.Address
		req     ledger.IssueRequest
		wantErr error
	}{
		{
			name:    "collector cannot issue",
			caller:  collector,
			req:     ledger.IssueRequest{To: other},
			wantErr: domain.ErrUnauthorizedIssuance,
		},
		{
			name:    "null recipient",
			caller:  admin,
			req:     ledger.IssueRequest{To: common.Address{}},
			wantErr: domain.ErrInvalidAddress,
		},
		{
			name:    "registry recipient",
			caller:  admin,
			req:     ledger.IssueRequest{To: registryAddr},
			wantErr: domain.ErrInvalidAddress,
		},
		{
			name:    "zero serial",
			caller:  admin,
			req:     ledger.IssueRequest{To: collector, SerialHash: &zero},
			wantErr: domain.ErrInvalidSerialHash,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl := setupTestLedger(t)
			ctx := context.Background()

			_, err := tl.ledger.Issue(ctx, tt.caller, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)

			total, err := tl.ledger.TotalIssued(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(0), total)
		})
	}
}

func TestLedger_Issue_DuplicateSerialRollsBack(t *testing.T) {
	tl := setupTestLedger(t)
	ctx := context.Background()

	first := tl.issue(t, collector, hashPtr(serialA))
	before := tl.notificationTypes(t)

	_, err := tl.ledger.Issue(ctx, admin, ledger.IssueRequest{
		To:         other,
		SerialHash: hashPtr(serialA),
	})
	require.ErrorIs(t, err, domain.ErrSerialHashAlreadyExists)

	// No half-issued token survives
	total, err := tl.ledger.TotalIssued(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)

	owned, err := tl.ledger.TokensOwnedBy(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, owned)

	assert.Equal(t, before, tl.notificationTypes(t))

	bound, err := tl.ledger.LookupBySerial(ctx, serialA)
	require.NoError(t, err)
	assert.Equal(t, first, bound)

	// The id is reused by the next successful issuance
	assert.Equal(t, first+1, tl.issue(t, other, hashPtr(serialB)))
}

func TestLedger_TokenQueries_NotFound(t *testing.T) {
	tl := setupTestLedger(t)
	ctx := context.Background()

	_, err := tl.ledger.GetToken(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)

	_, err = tl.ledger.GetMetadata(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)

	_, err = tl.ledger.GetHistory(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)

	_, err = tl.ledger.OwnerOf(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)

	_, err = tl.ledger.TokensOwnedBy(ctx, common.Address{})
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)

	owned, err := tl.ledger.TokensOwnedBy(ctx, collector)
	require.NoError(t, err)
	assert.Empty(t, owned)
}
