package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-custody-ledger/internal/domain"
)

var (
	testAdmin     = common.HexToAddress("0xaAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa")
	testShop      = common.HexToAddress("0x5b38Da6a701c568545dCfcB03FcB875f56beddC4")
	testCollector = common.HexToAddress("0xAb8483F64d9C6d1EcF9b849Ae677dD3315835cb2")
	testOther     = common.HexToAddress("0x4B20993Bc481177ec7E8f571ceCaE8A9e22C02db")
)

// =============================================================================
// Test Data Builders
// =============================================================================

func testTime() time.Time {
	return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
}

func buildTestTokenInput(owner common.Address) CreateTokenInput {
	return CreateTokenInput{
		Owner:        owner,
		MetadataRef:  "ipfs://bafy-watch-metadata",
		IssuedAt:     testTime(),
		IssuingAgent: testShop,
	}
}

func createTestToken(t *testing.T, store Store, owner common.Address) *domain.Token {
	var token *domain.Token
	err := store.RunInTransaction(context.Background(), func(tx Tx) error {
		var err error
		token, err = tx.CreateToken(buildTestTokenInput(owner))
		if err != nil {
			return err
		}
		return tx.AppendHistory(domain.HistoryEntry{TokenID: token.ID, To: owner, Timestamp: testTime()})
	})
	require.NoError(t, err)
	require.NotNil(t, token)
	return token
}

func viewToken(t *testing.T, store Store, id domain.TokenID) *domain.Token {
	var token *domain.Token
	require.NoError(t, store.View(context.Background(), func(v View) error {
		var err error
		token, err = v.GetToken(id)
		return err
	}))
	return token
}

// =============================================================================
// Test: Tokens
// =============================================================================

func testCreateToken(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("ids are sequential starting at one", func(t *testing.T) {
		first := createTestToken(t, store, testCollector)
		second := createTestToken(t, store, testOther)

		assert.Equal(t, domain.TokenID(1), first.ID)
		assert.Equal(t, domain.TokenID(2), second.ID)

		err := store.View(ctx, func(v View) error {
			count, err := v.CountTokens()
			require.NoError(t, err)
			assert.Equal(t, uint64(2), count)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("token fields round trip", func(t *testing.T) {
		token := viewToken(t, store, 1)
		require.NotNil(t, token)
		assert.Equal(t, testCollector, token.Owner)
		assert.Equal(t, "ipfs://bafy-watch-metadata", token.MetadataRef)
		assert.Equal(t, testShop, token.IssuingAgent)
		assert.True(t, testTime().Equal(token.IssuedAt))
		assert.Nil(t, token.SerialHash)
	})

	t.Run("missing token returns nil", func(t *testing.T) {
		assert.Nil(t, viewToken(t, store, 99))
	})

	t.Run("failed transaction does not consume an id", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.RunInTransaction(ctx, func(tx Tx) error {
			_, err := tx.CreateToken(buildTestTokenInput(testCollector))
			require.NoError(t, err)
			return boom
		})
		assert.ErrorIs(t, err, boom)

		next := createTestToken(t, store, testCollector)
		assert.Equal(t, domain.TokenID(3), next.ID)
	})
}

func testOwnership(t *testing.T, store Store) {
	ctx := context.Background()

	a := createTestToken(t, store, testCollector)
	b := createTestToken(t, store, testCollector)
	c := createTestToken(t, store, testOther)

	err := store.RunInTransaction(ctx, func(tx Tx) error {
		if err := tx.UpdateTokenOwner(b.ID, testOther); err != nil {
			return err
		}
		from := testCollector
		return tx.AppendHistory(domain.HistoryEntry{TokenID: b.ID, From: &from, To: testOther, Timestamp: testTime().Add(time.Hour)})
	})
	require.NoError(t, err)

	err = store.View(ctx, func(v View) error {
		ids, err := v.GetTokenIDsByOwner(testCollector)
		require.NoError(t, err)
		assert.Equal(t, []domain.TokenID{a.ID}, ids)

		ids, err = v.GetTokenIDsByOwner(testOther)
		require.NoError(t, err)
		assert.Equal(t, []domain.TokenID{b.ID, c.ID}, ids)

		ids, err = v.GetTokenIDsByOwner(testAdmin)
		require.NoError(t, err)
		assert.Empty(t, ids)

		history, err := v.GetTokenHistory(b.ID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.True(t, history[0].IsIssuance())
		assert.Equal(t, testCollector, history[0].To)
		require.NotNil(t, history[1].From)
		assert.Equal(t, testCollector, *history[1].From)
		assert.Equal(t, testOther, history[1].To)
		return nil
	})
	require.NoError(t, err)

	t.Run("update owner of missing token", func(t *testing.T) {
		err := store.RunInTransaction(ctx, func(tx Tx) error {
			return tx.UpdateTokenOwner(999, testOther)
		})
		assert.ErrorIs(t, err, domain.ErrTokenNotFound)
	})
}

// =============================================================================
// Test: Serials
// =============================================================================

func testSerials(t *testing.T, store Store) {
	ctx := context.Background()

	a := createTestToken(t, store, testCollector)
	b := createTestToken(t, store, testCollector)
	hash := domain.HashSerialNumber("SN-0001")

	err := store.RunInTransaction(ctx, func(tx Tx) error {
		return tx.SetTokenSerial(a.ID, hash)
	})
	require.NoError(t, err)

	token := viewToken(t, store, a.ID)
	require.NotNil(t, token.SerialHash)
	assert.Equal(t, hash, *token.SerialHash)

	err = store.View(ctx, func(v View) error {
		id, err := v.GetTokenIDBySerial(hash)
		require.NoError(t, err)
		require.NotNil(t, id)
		assert.Equal(t, a.ID, *id)

		id, err = v.GetTokenIDBySerial(domain.HashSerialNumber("SN-unknown"))
		require.NoError(t, err)
		assert.Nil(t, id)
		return nil
	})
	require.NoError(t, err)

	t.Run("serial cannot be rebound", func(t *testing.T) {
		err := store.RunInTransaction(ctx, func(tx Tx) error {
			return tx.SetTokenSerial(a.ID, domain.HashSerialNumber("SN-0002"))
		})
		assert.ErrorIs(t, err, domain.ErrSerialAlreadySet)
	})

	t.Run("serial hash is unique", func(t *testing.T) {
		err := store.RunInTransaction(ctx, func(tx Tx) error {
			return tx.SetTokenSerial(b.ID, hash)
		})
		assert.ErrorIs(t, err, domain.ErrSerialHashAlreadyExists)
		assert.Nil(t, viewToken(t, store, b.ID).SerialHash)
	})

	t.Run("serial on missing token", func(t *testing.T) {
		err := store.RunInTransaction(ctx, func(tx Tx) error {
			return tx.SetTokenSerial(999, domain.HashSerialNumber("SN-0003"))
		})
		assert.ErrorIs(t, err, domain.ErrTokenNotFound)
	})
}

// =============================================================================
// Test: Pending transfers
// =============================================================================

func testPendingTransfers(t *testing.T, store Store) {
	ctx := context.Background()

	a := createTestToken(t, store, testCollector)
	b := createTestToken(t, store, testOther)

	pending := domain.PendingTransfer{
		TokenID:     a.ID,
		From:        testCollector,
		To:          testOther,
		RequestedAt: testTime(),
	}
	require.NoError(t, store.RunInTransaction(ctx, func(tx Tx) error {
		if err := tx.PutPendingTransfer(pending); err != nil {
			return err
		}
		return tx.PutPendingTransfer(domain.PendingTransfer{TokenID: b.ID, From: testOther, To: testAdmin, RequestedAt: testTime()})
	}))

	t.Run("approval flags are replaced", func(t *testing.T) {
		pending.OwnerApproved = true
		require.NoError(t, store.RunInTransaction(ctx, func(tx Tx) error {
			return tx.PutPendingTransfer(pending)
		}))

		require.NoError(t, store.View(ctx, func(v View) error {
			got, err := v.GetPendingTransfer(a.ID)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, got.OwnerApproved)
			assert.False(t, got.RecipientApproved)
			assert.Equal(t, testOther, got.To)
			return nil
		}))
	})

	t.Run("lookup by sender or recipient", func(t *testing.T) {
		require.NoError(t, store.View(ctx, func(v View) error {
			got, err := v.GetPendingTransfersByAddress(testOther)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, a.ID, got[0].TokenID)
			assert.Equal(t, b.ID, got[1].TokenID)

			got, err = v.GetPendingTransfersByAddress(testCollector)
			require.NoError(t, err)
			require.Len(t, got, 1)

			got, err = v.GetPendingTransfersByAddress(testShop)
			require.NoError(t, err)
			assert.Empty(t, got)
			return nil
		}))
	})

	t.Run("delete clears the record", func(t *testing.T) {
		require.NoError(t, store.RunInTransaction(ctx, func(tx Tx) error {
			return tx.DeletePendingTransfer(a.ID)
		}))
		require.NoError(t, store.View(ctx, func(v View) error {
			got, err := v.GetPendingTransfer(a.ID)
			require.NoError(t, err)
			assert.Nil(t, got)
			return nil
		}))
	})

	t.Run("rollback restores deleted record", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.RunInTransaction(ctx, func(tx Tx) error {
			require.NoError(t, tx.DeletePendingTransfer(b.ID))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		require.NoError(t, store.View(ctx, func(v View) error {
			got, err := v.GetPendingTransfer(b.ID)
			require.NoError(t, err)
			assert.NotNil(t, got)
			return nil
		}))
	})
}

// =============================================================================
// Test: Access control
// =============================================================================

func testAccessControl(t *testing.T, store Store) {
	ctx := context.Background()

	require.NoError(t, store.View(ctx, func(v View) error {
		admin, err := v.GetAdmin()
		require.NoError(t, err)
		assert.Nil(t, admin)
		return nil
	}))

	require.NoError(t, store.RunInTransaction(ctx, func(tx Tx) error {
		if err := tx.SetAdmin(testAdmin); err != nil {
			return err
		}
		if err := tx.AuthorizeShop(testShop, testAdmin); err != nil {
			return err
		}
		return tx.AuthorizeShop(testCollector, testAdmin)
	}))

	require.NoError(t, store.View(ctx, func(v View) error {
		admin, err := v.GetAdmin()
		require.NoError(t, err)
		require.NotNil(t, admin)
		assert.Equal(t, testAdmin, *admin)

		ok, err := v.IsShopAuthorized(testShop)
		require.NoError(t, err)
		assert.True(t, ok)

		shops, err := v.ListAuthorizedShops()
		require.NoError(t, err)
		// Ascending byte order
		assert.Equal(t, []common.Address{testShop, testCollector}, shops)
		return nil
	}))

	require.NoError(t, store.RunInTransaction(ctx, func(tx Tx) error {
		return tx.RevokeShop(testCollector)
	}))

	require.NoError(t, store.View(ctx, func(v View) error {
		ok, err := v.IsShopAuthorized(testCollector)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

// =============================================================================
// Test: Notifications
// =============================================================================

func appendTestNotification(t *testing.T, store Store, id string, nt domain.NotificationType, tokenID *domain.TokenID) *domain.Notification {
	n := &domain.Notification{
		ID:        id,
		Type:      nt,
		TokenID:   tokenID,
		Payload:   domain.NotificationPayload{To: &testCollector, MetadataRef: "ipfs://x"},
		CreatedAt: testTime(),
	}
	require.NoError(t, store.RunInTransaction(context.Background(), func(tx Tx) error {
		return tx.AppendNotification(n)
	}))
	return n
}

func testNotifications(t *testing.T, store Store) {
	ctx := context.Background()

	token := createTestToken(t, store, testCollector)
	id := token.ID

	first := appendTestNotification(t, store, "01JAAAAAAAAAAAAAAAAAAAAAA1", domain.NotificationTypeIssued, &id)
	second := appendTestNotification(t, store, "01JAAAAAAAAAAAAAAAAAAAAAA2", domain.NotificationTypeShopAuthorized, nil)
	third := appendTestNotification(t, store, "01JAAAAAAAAAAAAAAAAAAAAAA3", domain.NotificationTypeTransferRequested, &id)

	assert.Equal(t, uint64(1), first.Cursor)
	assert.Equal(t, uint64(2), second.Cursor)
	assert.Equal(t, uint64(3), third.Cursor)

	t.Run("rolled back notification leaves no gap", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.RunInTransaction(ctx, func(tx Tx) error {
			require.NoError(t, tx.AppendNotification(&domain.Notification{
				ID:        "01JAAAAAAAAAAAAAAAAAAAAAA9",
				Type:      domain.NotificationTypeShopRevoked,
				CreatedAt: testTime(),
			}))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		latest, err := store.GetLatestNotificationCursor(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), latest)

		fourth := appendTestNotification(t, store, "01JAAAAAAAAAAAAAAAAAAAAAA4", domain.NotificationTypeShopRevoked, nil)
		assert.Equal(t, uint64(4), fourth.Cursor)
	})

	t.Run("anchor pagination", func(t *testing.T) {
		results, total, err := store.GetNotifications(ctx, domain.NotificationFilter{Anchor: 1, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, uint64(3), total)
		require.Len(t, results, 2)
		assert.Equal(t, uint64(2), results[0].Cursor)
		assert.Equal(t, uint64(3), results[1].Cursor)
		assert.Equal(t, third.ID, results[1].ID)
		require.NotNil(t, results[1].Payload.To)
		assert.Equal(t, testCollector, *results[1].Payload.To)
		assert.Equal(t, "ipfs://x", results[1].Payload.MetadataRef)
	})

	t.Run("filter by token", func(t *testing.T) {
		results, total, err := store.GetNotifications(ctx, domain.NotificationFilter{TokenID: &id})
		require.NoError(t, err)
		assert.Equal(t, uint64(2), total)
		require.Len(t, results, 2)
		assert.Equal(t, domain.NotificationTypeIssued, results[0].Type)
		assert.Equal(t, domain.NotificationTypeTransferRequested, results[1].Type)
	})

	t.Run("filter by type", func(t *testing.T) {
		results, _, err := store.GetNotifications(ctx, domain.NotificationFilter{
			Types: []domain.NotificationType{domain.NotificationTypeShopAuthorized, domain.NotificationTypeShopRevoked},
		})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Nil(t, results[0].TokenID)
	})

	t.Run("anchor past the end", func(t *testing.T) {
		results, total, err := store.GetNotifications(ctx, domain.NotificationFilter{Anchor: 100})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, results)
	})
}

// =============================================================================
// Test: Key-value store and cursors
// =============================================================================

func testKeyValueStore(t *testing.T, store Store) {
	ctx := context.Background()

	value, err := store.GetKeyValue(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, store.SetKeyValue(ctx, "k", "v1"))
	require.NoError(t, store.SetKeyValue(ctx, "k", "v2"))
	value, err = store.GetKeyValue(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", value)

	cursors := NewCursorStore(store)
	cursor, err := cursors.GetRelayCursor(ctx, "jetstream")
	require.NoError(t, err)
	assert.Zero(t, cursor)

	require.NoError(t, cursors.SetRelayCursor(ctx, "jetstream", 42))
	cursor, err = cursors.GetRelayCursor(ctx, "jetstream")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), cursor)

	other, err := cursors.GetRelayCursor(ctx, "webhook")
	require.NoError(t, err)
	assert.Zero(t, other)
}

// RunStoreTests runs all store tests against an implementation
func RunStoreTests(t *testing.T, initDB func(t *testing.T) Store, cleanupDB func(t *testing.T)) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store Store)
	}{
		{"CreateToken", testCreateToken},
		{"Ownership", testOwnership},
		{"Serials", testSerials},
		{"PendingTransfers", testPendingTransfers},
		{"AccessControl", testAccessControl},
		{"Notifications", testNotifications},
		{"KeyValueStore", testKeyValueStore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := initDB(t)
			defer cleanupDB(t)
			tt.fn(t, store)
		})
	}
}
