package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-custody-ledger/internal/domain"
	"github.com/feral-file/ff-custody-ledger/internal/store"
)

func isAdmin(v store.View, address common.Address) (bool, error) {
	admin, err := v.GetAdmin()
	if err != nil {
		return false, err
	}
	return admin != nil && *admin == address, nil
}

// isIssuer holds for the administrator and for authorized shops
func isIssuer(v store.View, address common.Address) (bool, error) {
	ok, err := isAdmin(v, address)
	if err != nil || ok {
		return ok, err
	}
	return v.IsShopAuthorized(address)
}

// SetShopAuthorization adds or removes a shop from the issuer allowlist.
// Setting the current state again is rejected.
func (l *ledger) SetShopAuthorization(ctx context.Context, caller, shop common.Address, authorize bool) error {
	return l.submit(ctx, "set_shop_authorization", func(w *writeTx) error {
		if err := w.requireAdmin(caller); err != nil {
			return err
		}
		if err := l.validateIdentity(shop); err != nil {
			return err
		}

		current, err := w.IsShopAuthorized(shop)
		if err != nil {
			return err
		}

		payload := domain.NotificationPayload{
			Shop:       addressRef(shop),
			Authorized: &authorize,
			Actor:      addressRef(caller),
		}

		if authorize {
			if current {
				return domain.ErrAlreadyAuthorized
			}
			if err := w.AuthorizeShop(shop, caller); err != nil {
				return err
			}
			return w.emit(domain.NotificationTypeShopAuthorized, nil, payload)
		}

		if !current {
			return domain.ErrNotAuthorized
		}
		if err := w.RevokeShop(shop); err != nil {
			return err
		}
		return w.emit(domain.NotificationTypeShopRevoked, nil, payload)
	})
}

// TransferAdmin hands the administrator role to newAdmin without a handshake
func (l *ledger) TransferAdmin(ctx context.Context, caller, newAdmin common.Address) error {
	return l.submit(ctx, "transfer_admin", func(w *writeTx) error {
		if err := w.requireAdmin(caller); err != nil {
			return err
		}
		if err := l.validateIdentity(newAdmin); err != nil {
			return err
		}
		if err := w.SetAdmin(newAdmin); err != nil {
			return err
		}
		return w.emit(domain.NotificationTypeAdminTransferred, nil, domain.NotificationPayload{
			From:  addressRef(caller),
			To:    addressRef(newAdmin),
			Actor: addressRef(caller),
		})
	})
}

// IsAdmin reports whether address is the administrator
func (l *ledger) IsAdmin(ctx context.Context, address common.Address) (bool, error) {
	var ok bool
	err := l.view(ctx, func(v store.View) error {
		var err error
		ok, err = isAdmin(v, address)
		return err
	})
	return ok, err
}

// IsIssuer reports whether address may issue tokens
func (l *ledger) IsIssuer(ctx context.Context, address common.Address) (bool, error) {
	var ok bool
	err := l.view(ctx, func(v store.View) error {
		var err error
		ok, err = isIssuer(v, address)
		return err
	})
	return ok, err
}

// IsAuthorizedShop reports allowlist membership only, ignoring the administrator
func (l *ledger) IsAuthorizedShop(ctx context.Context, address common.Address) (bool, error) {
	var ok bool
	err := l.view(ctx, func(v store.View) error {
		var err error
		ok, err = v.IsShopAuthorized(address)
		return err
	})
	return ok, err
}

// ListAuthorizedShops returns the current allowlist
func (l *ledger) ListAuthorizedShops(ctx context.Context) ([]common.Address, error) {
	var shops []common.Address
	err := l.view(ctx, func(v store.View) error {
		var err error
		shops, err = v.ListAuthorizedShops()
		return err
	})
	return shops, err
}

// RoleOf classifies an address. The administrator role takes precedence over shop membership.
func (l *ledger) RoleOf(ctx context.Context, address common.Address) (domain.Role, error) {
	role := domain.RoleCollector
	err := l.view(ctx, func(v store.View) error {
		admin, err := isAdmin(v, address)
		if err != nil {
			return err
		}
		if admin {
			role = domain.RoleAdmin
			return nil
		}

		shop, err := v.IsShopAuthorized(address)
		if err != nil {
			return err
		}
		if shop {
			role = domain.RoleShop
		}
		return nil
	})
	return role, err
}
