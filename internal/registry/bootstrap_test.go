package registry_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-custody-ledger/internal/adapter"
	"github.com/feral-file/ff-custody-ledger/internal/domain"
	"github.com/feral-file/ff-custody-ledger/internal/ledger"
	"github.com/feral-file/ff-custody-ledger/internal/logger"
	"github.com/feral-file/ff-custody-ledger/internal/registry"
	"github.com/feral-file/ff-custody-ledger/internal/store"
)

var (
	registryAddr = common.HexToAddress("0xd9145CCE52D386f254917e481eB44e9943F39138")
	admin        = common.HexToAddress("0x5B38Da6a701c568545dCfcB03FcB875f56beddC4")
	shopA        = common.HexToAddress("0xAb8483F64d9C6d1EcF9b849Ae677dD3315835cb2")
	shopB        = common.HexToAddress("0x4B20993Bc481177ec7E8f571ceCaE8A9e22C02db")
)

func TestMain(m *testing.M) {
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

func writeBootstrap(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bootstrap.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadBootstrap(t *testing.T) {
	tests := []struct {
		name         string
		content      string
		expectedErr  string
		validateFunc func(t *testing.T, data *registry.BootstrapData)
	}{
		{
			name: "successful load",
			content: `{
				"version": 1,
				"shops": [
					{"address": "0xAb8483F64d9C6d1EcF9b849Ae677dD3315835cb2", "name": "Ginza"},
					{"address": "0x4b20993bc481177ec7e8f571cecae8a9e22c02db"},
					{"address": " 0xab8483f64d9c6d1ecf9b849ae677dd3315835cb2 "}
				]
			}`,
			validateFunc: func(t *testing.T, data *registry.BootstrapData) {
				assert.Equal(t, 1, data.Version)
				assert.Len(t, data.Shops, 3)
				addresses, err := data.ShopAddresses()
				require.NoError(t, err)
				assert.Equal(t, []common.Address{shopA, shopB}, addresses)
			},
		},
		{
			name:    "empty shop list",
			content: `{"version": 1, "shops": []}`,
			validateFunc: func(t *testing.T, data *registry.BootstrapData) {
				addresses, err := data.ShopAddresses()
				require.NoError(t, err)
				assert.Empty(t, addresses)
			},
		},
		{
			name:        "invalid JSON",
			content:     `{"shops": [`,
			expectedErr: "failed to parse bootstrap JSON",
		},
		{
			name:        "invalid address",
			content:     `{"shops": [{"address": "not-an-address"}]}`,
			expectedErr: "invalid address",
		},
		{
			name:        "null identity",
			content:     `{"shops": [{"address": "0x0000000000000000000000000000000000000000"}]}`,
			expectedErr: "null identity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := registry.LoadBootstrap(writeBootstrap(t, tt.content), adapter.NewJSON())
			if tt.expectedErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedErr)
				return
			}
			require.NoError(t, err)
			tt.validateFunc(t, data)
		})
	}
}

func TestLoadBootstrap_MissingFile(t *testing.T) {
	_, err := registry.LoadBootstrap(filepath.Join(t.TempDir(), "missing.json"), adapter.NewJSON())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read bootstrap file")
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	l, err := ledger.New(ctx, ledger.Config{
		RegistryAddress: registryAddr,
		InitialAdmin:    admin,
	}, store.NewMemoryStore(), adapter.NewClock())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	require.NoError(t, l.SetShopAuthorization(ctx, admin, shopA, true))

	data := &registry.BootstrapData{
		Version: 1,
		Shops: []registry.ShopEntry{
			{Address: shopA.Hex()},
			{Address: shopB.Hex()},
		},
	}

	applied, err := registry.Apply(ctx, l, data)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	shops, err := l.ListAuthorizedShops(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []common.Address{shopA, shopB}, shops)

	// Reapplying is a no-op
	applied, err = registry.Apply(ctx, l, data)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)

	notifications, total, err := l.GetNotifications(ctx, domain.NotificationFilter{Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), total)
	assert.Len(t, notifications, 3)
}

func TestApply_RegistryAddressRejected(t *testing.T) {
	ctx := context.Background()
	l, err := ledger.New(ctx, ledger.Config{
		RegistryAddress: registryAddr,
		InitialAdmin:    admin,
	}, store.NewMemoryStore(), adapter.NewClock())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	_, err = registry.Apply(ctx, l, &registry.BootstrapData{
		Shops: []registry.ShopEntry{{Address: registryAddr.Hex()}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)
}
