package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/feral-file/ff-custody-ledger/internal/domain"
	"github.com/feral-file/ff-custody-ledger/internal/logger"
	"github.com/feral-file/ff-custody-ledger/internal/metrics"
	"github.com/feral-file/ff-custody-ledger/internal/store"
)

// transferStatus loads the explicit protocol state of a token
func transferStatus(v store.View, tokenID domain.TokenID) (domain.TransferStatus, error) {
	pending, err := v.GetPendingTransfer(tokenID)
	if err != nil {
		return domain.TransferStatus{}, err
	}
	if pending == nil {
		return domain.IdleTransferStatus(tokenID), nil
	}
	return domain.PendingTransferStatus(*pending), nil
}

// RequestTransfer moves a token from Idle to Pending. The owner's approval is implied by the request.
func (l *ledger) RequestTransfer(ctx context.Context, caller common.Address, tokenID domain.TokenID, to common.Address) error {
	return l.submit(ctx, "request_transfer", func(w *writeTx) error {
		token, err := getToken(w, tokenID)
		if err != nil {
			return err
		}
		if token.Owner != caller {
			return domain.ErrNotOwner
		}
		if err := l.validateIdentity(to); err != nil {
			return err
		}
		if to == token.Owner {
			return fmt.Errorf("%w: self transfer", domain.ErrInvalidAddress)
		}

		status, err := transferStatus(w, tokenID)
		if err != nil {
			return err
		}
		if status.State == domain.TransferStatePending {
			return domain.ErrTransferAlreadyPending
		}

		pending := domain.PendingTransfer{
			TokenID:       tokenID,
			From:          caller,
			To:            to,
			OwnerApproved: true,
			RequestedAt:   w.now,
		}
		if err := w.PutPendingTransfer(pending); err != nil {
			return err
		}

		payload := domain.NotificationPayload{
			From:  addressRef(caller),
			To:    addressRef(to),
			Actor: addressRef(caller),
		}
		if err := w.emit(domain.NotificationTypeTransferRequested, tokenRef(tokenID), payload); err != nil {
			return err
		}
		return w.emit(domain.NotificationTypeTransferOwnerApproved, tokenRef(tokenID), payload)
	})
}

// ApproveReceive records the recipient's approval, which executes the transfer in the same step
func (l *ledger) ApproveReceive(ctx context.Context, caller common.Address, tokenID domain.TokenID) error {
	return l.submit(ctx, "approve_receive", func(w *writeTx) error {
		status, err := transferStatus(w, tokenID)
		if err != nil {
			return err
		}
		if status.State != domain.TransferStatePending {
			return domain.ErrTransferNotFound
		}

		pending := status.Pending
		if pending.To != caller {
			return domain.ErrNotRecipient
		}
		pending.RecipientApproved = true

		payload := domain.NotificationPayload{
			From:  addressRef(pending.From),
			To:    addressRef(pending.To),
			Actor: addressRef(caller),
		}
		if err := w.emit(domain.NotificationTypeTransferRecipientApproved, tokenRef(tokenID), payload); err != nil {
			return err
		}

		// Both approvals are present: execute
		if err := w.moveOwnership(tokenID, pending.From, pending.To); err != nil {
			return err
		}
		if err := w.DeletePendingTransfer(tokenID); err != nil {
			return err
		}

		if err := w.emit(domain.NotificationTypeTransferExecuted, tokenRef(tokenID), payload); err != nil {
			return err
		}
		return w.emit(domain.NotificationTypeOwnershipChanged, tokenRef(tokenID), payload)
	})
}

// CancelTransfer moves a token from Pending back to Idle without touching ownership.
// Either party of the pending transfer may cancel.
func (l *ledger) CancelTransfer(ctx context.Context, caller common.Address, tokenID domain.TokenID) error {
	return l.submit(ctx, "cancel_transfer", func(w *writeTx) error {
		status, err := transferStatus(w, tokenID)
		if err != nil {
			return err
		}
		if status.State != domain.TransferStatePending {
			return domain.ErrTransferNotFound
		}

		pending := status.Pending
		if caller != pending.From && caller != pending.To {
			return domain.ErrUnauthorizedCancellation
		}

		if err := w.DeletePendingTransfer(tokenID); err != nil {
			return err
		}

		return w.emit(domain.NotificationTypeTransferCancelled, tokenRef(tokenID), domain.NotificationPayload{
			From:  addressRef(pending.From),
			To:    addressRef(pending.To),
			Actor: addressRef(caller),
		})
	})
}

// EmergencyTransfer forces ownership to `to`, discarding any pending transfer without a notification.
// The asserted `from` is recorded in the history as given and is not checked against the stored owner.
func (l *ledger) EmergencyTransfer(ctx context.Context, caller, from, to common.Address, tokenID domain.TokenID) error {
	return l.submit(ctx, "emergency_transfer", func(w *writeTx) error {
		if err := w.requireAdmin(caller); err != nil {
			return err
		}

		token, err := getToken(w, tokenID)
		if err != nil {
			return err
		}
		if err := l.validateIdentity(to); err != nil {
			return err
		}

		if from != token.Owner {
			logger.WarnCtx(w.ctx, "Emergency transfer asserted a sender that is not the current owner",
				zap.Uint64("token_id", uint64(tokenID)),
				zap.String("asserted_from", from.Hex()),
				zap.String("owner", token.Owner.Hex()))
		}

		if err := w.DeletePendingTransfer(tokenID); err != nil {
			return err
		}
		if err := w.moveOwnership(tokenID, from, to); err != nil {
			return err
		}

		return w.emit(domain.NotificationTypeOwnershipChanged, tokenRef(tokenID), domain.NotificationPayload{
			From:  addressRef(from),
			To:    addressRef(to),
			Actor: addressRef(caller),
		})
	})
}

// DirectTransfer is permanently disabled: ownership only changes through the dual-approval protocol or the emergency override
func (l *ledger) DirectTransfer(_ context.Context, _, _, _ common.Address, _ domain.TokenID) error {
	metrics.RecordLedgerOperation("direct_transfer", resultOf(domain.ErrDirectTransferDisabled), 0)
	return domain.ErrDirectTransferDisabled
}

// moveOwnership sets the owner and appends the history entry
func (w *writeTx) moveOwnership(tokenID domain.TokenID, from, to common.Address) error {
	if err := w.UpdateTokenOwner(tokenID, to); err != nil {
		return err
	}
	return w.AppendHistory(domain.HistoryEntry{
		TokenID:   tokenID,
		From:      addressRef(from),
		To:        to,
		Timestamp: w.now,
	})
}
