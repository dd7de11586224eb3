package registry

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/feral-file/ff-custody-ledger/internal/adapter"
	"github.com/feral-file/ff-custody-ledger/internal/domain"
	"github.com/feral-file/ff-custody-ledger/internal/logger"
)

// ShopEntry is one shop listed in the bootstrap file
type ShopEntry struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// BootstrapData represents the structure of the bootstrap JSON file
type BootstrapData struct {
	Version int         `json:"version"`
	Shops   []ShopEntry `json:"shops"`
}

// ShopAuthorizer is the part of the ledger the bootstrap applies through
type ShopAuthorizer interface {
	Info(ctx context.Context) (*domain.RegistryInfo, error)
	IsAuthorizedShop(ctx context.Context, address common.Address) (bool, error)
	SetShopAuthorization(ctx context.Context, caller, shop common.Address, authorize bool) error
}

// LoadBootstrap loads the bootstrap data from a JSON file
func LoadBootstrap(filePath string, json adapter.JSON) (*BootstrapData, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec,G304 // This should be a trusted file
	if err != nil {
		return nil, fmt.Errorf("failed to read bootstrap file: %w", err)
	}

	var bootstrap BootstrapData
	if err := json.Unmarshal(data, &bootstrap); err != nil {
		return nil, fmt.Errorf("failed to parse bootstrap JSON: %w", err)
	}

	if _, err := bootstrap.ShopAddresses(); err != nil {
		return nil, err
	}

	return &bootstrap, nil
}

// ShopAddresses returns the listed shop addresses in file order without duplicates
func (b *BootstrapData) ShopAddresses() ([]common.Address, error) {
	seen := make(map[common.Address]bool, len(b.Shops))
	addresses := make([]common.Address, 0, len(b.Shops))
	for i, shop := range b.Shops {
		addr, err := domain.ParseAddress(strings.TrimSpace(shop.Address))
		if err != nil {
			return nil, fmt.Errorf("shop %d: %w", i, err)
		}
		if domain.IsZeroAddress(addr) {
			return nil, fmt.Errorf("shop %d: %w: null identity", i, domain.ErrInvalidAddress)
		}
		if seen[addr] {
			continue
		}
		seen[addr] = true
		addresses = append(addresses, addr)
	}
	return addresses, nil
}

// Apply authorizes every listed shop that is not yet authorized, acting as the current administrator.
// It returns the number of shops newly authorized.
func Apply(ctx context.Context, l ShopAuthorizer, data *BootstrapData) (int, error) {
	addresses, err := data.ShopAddresses()
	if err != nil {
		return 0, err
	}
	if len(addresses) == 0 {
		return 0, nil
	}

	info, err := l.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read registry info: %w", err)
	}
	if domain.IsZeroAddress(info.Admin) {
		return 0, fmt.Errorf("%w: registry has no administrator", domain.ErrUnauthorized)
	}

	applied := 0
	for _, addr := range addresses {
		authorized, err := l.IsAuthorizedShop(ctx, addr)
		if err != nil {
			return applied, fmt.Errorf("failed to check shop %s: %w", addr.Hex(), err)
		}
		if authorized {
			continue
		}

		if err := l.SetShopAuthorization(ctx, info.Admin, addr, true); err != nil {
			return applied, fmt.Errorf("failed to authorize shop %s: %w", addr.Hex(), err)
		}
		applied++
	}

	logger.InfoCtx(ctx, "Applied bootstrap shops",
		zap.Int("listed", len(addresses)),
		zap.Int("authorized", applied))

	return applied, nil
}
