package ledger_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-custody-ledger/internal/domain"
)

func TestLedger_RegisterSerial(t *testing.T) {
	tl := setupTestLedger(t)
	ctx := context.Background()
	first := tl.issue(t, collector, nil)
	second := tl.issue(t, collector, nil)

	has, err := tl.ledger.HasSerial(ctx, first)
	require.NoError(t, err)
	assert.False(t, has)

	_, err = tl.ledger.VerifySerial(ctx, first, serialA)
	assert.ErrorIs(t, err, domain.ErrSerialNotFound)

	require.NoError(t, tl.ledger.RegisterSerial(ctx, admin, first, serialA))

	has, err = tl.ledger.HasSerial(ctx, first)
	require.NoError(t, err)
	assert.True(t, has)

	hash, err := tl.ledger.SerialOf(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, serialA, hash)

	ok, err := tl.ledger.VerifySerial(ctx, first, serialA)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tl.ledger.VerifySerial(ctx, first, serialB)
	require.NoError(t, err)
	assert.False(t, ok)

	exists, err := tl.ledger.SerialExists(ctx, serialA)
	require.NoError(t, err)
	assert.True(t, exists)

	// Binding is single-assignment in both directions
	err = tl.ledger.RegisterSerial(ctx, admin, first, serialB)
	assert.ErrorIs(t, err, domain.ErrSerialAlreadySet)

	err = tl.ledger.RegisterSerial(ctx, admin, second, serialA)
	assert.ErrorIs(t, err, domain.ErrSerialHashAlreadyExists)

	exists, err = tl.ledger.SerialExists(ctx, serialB)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLedger_RegisterSerial_Errors(t *testing.T) {
	tl := setupTestLedger(t)
	ctx := context.Background()
	id := tl.issue(t, collector, nil)

	err := tl.ledger.RegisterSerial(ctx, collector, id, serialA)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	err = tl.ledger.RegisterSerial(ctx, admin, id, common.Hash{})
	assert.ErrorIs(t, err, domain.ErrInvalidSerialHash)

	err = tl.ledger.RegisterSerial(ctx, admin, 42, serialA)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestLedger_SerialQueries(t *testing.T) {
	tl := setupTestLedger(t)
	ctx := context.Background()

	_, err := tl.ledger.LookupBySerial(ctx, common.Hash{})
	assert.ErrorIs(t, err, domain.ErrInvalidSerialHash)

	_, err = tl.ledger.LookupBySerial(ctx, serialA)
	assert.ErrorIs(t, err, domain.ErrSerialNotFound)

	exists, err := tl.ledger.SerialExists(ctx, common.Hash{})
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = tl.ledger.HasSerial(ctx, 7)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)

	_, err = tl.ledger.SerialOf(ctx, 7)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}
