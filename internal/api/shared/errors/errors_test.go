package errors_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	apierrors "github.com/feral-file/ff-custody-ledger/internal/api/shared/errors"
	"github.com/feral-file/ff-custody-ledger/internal/domain"
)

func TestFromLedgerError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   apierrors.ErrorCode
		expectedLedger bool
	}{
		{"unauthorized issuance", domain.ErrUnauthorizedIssuance, http.StatusForbidden, apierrors.ErrCodeUnauthorizedIssuance, true},
		{"unauthorized", domain.ErrUnauthorized, http.StatusForbidden, apierrors.ErrCodeUnauthorized, true},
		{"not owner", domain.ErrNotOwner, http.StatusForbidden, apierrors.ErrCodeNotOwner, true},
		{"direct transfer", domain.ErrDirectTransferDisabled, http.StatusForbidden, apierrors.ErrCodeDirectTransferDisabled, true},
		{"token not found", domain.ErrTokenNotFound, http.StatusNotFound, apierrors.ErrCodeTokenNotFound, true},
		{"serial not found", domain.ErrSerialNotFound, http.StatusNotFound, apierrors.ErrCodeSerialNotFound, true},
		{"wrapped invalid address", fmt.Errorf("%w: registry identity", domain.ErrInvalidAddress), http.StatusBadRequest, apierrors.ErrCodeInvalidAddress, true},
		{"pending", domain.ErrTransferAlreadyPending, http.StatusConflict, apierrors.ErrCodeTransferAlreadyPending, true},
		{"already authorized", domain.ErrAlreadyAuthorized, http.StatusConflict, apierrors.ErrCodeAlreadyAuthorized, true},
		{"infrastructure", errors.New("connection reset"), http.StatusInternalServerError, apierrors.ErrCodeInternalError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, apiErr, isLedger := apierrors.FromLedgerError(tt.err)
			assert.Equal(t, tt.expectedStatus, status)
			assert.Equal(t, tt.expectedCode, apiErr.Code)
			assert.Equal(t, tt.expectedLedger, isLedger)
		})
	}
}

func TestFromLedgerError_Details(t *testing.T) {
	_, apiErr, _ := apierrors.FromLedgerError(domain.ErrNotOwner)
	assert.Equal(t, "caller is not the token owner", apiErr.Message)
	assert.Empty(t, apiErr.Details)

	_, apiErr, _ = apierrors.FromLedgerError(fmt.Errorf("%w: self transfer", domain.ErrInvalidAddress))
	assert.Equal(t, "invalid address", apiErr.Message)
	assert.Equal(t, "invalid address: self transfer", apiErr.Details)
}
