package dto

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-custody-ledger/internal/api/shared/constants"
	apierrors "github.com/feral-file/ff-custody-ledger/internal/api/shared/errors"
	"github.com/feral-file/ff-custody-ledger/internal/domain"
)

// SerialInput carries a serial either as its hash or as the plaintext serial number.
// Plaintext is hashed at the boundary and never stored.
type SerialInput struct {
	SerialHash   string `json:"serial_hash,omitempty" form:"serial_hash"`
	SerialNumber string `json:"serial_number,omitempty" form:"serial_number"`
}

// Present reports whether either form was supplied
func (s SerialInput) Present() bool {
	return s.SerialHash != "" || s.SerialNumber != ""
}

// Hash resolves the input into a serial hash
func (s SerialInput) Hash() (common.Hash, error) {
	switch {
	case s.SerialHash != "" && s.SerialNumber != "":
		return common.Hash{}, apierrors.NewValidationError("only one of serial_hash or serial_number is allowed")
	case s.SerialHash != "":
		return domain.ParseSerialHash(s.SerialHash)
	case s.SerialNumber != "":
		if len(s.SerialNumber) > constants.MAX_SERIAL_NUMBER_LENGTH {
			return common.Hash{}, apierrors.NewValidationError(fmt.Sprintf("serial_number exceeds %d characters", constants.MAX_SERIAL_NUMBER_LENGTH))
		}
		return domain.HashSerialNumber(s.SerialNumber), nil
	default:
		return common.Hash{}, apierrors.NewValidationError("serial_hash or serial_number is required")
	}
}

// IssueTokenRequest represents the request body for issuing a token
type IssueTokenRequest struct {
	To          string `json:"to"`
	MetadataRef string `json:"metadata_ref"`
	SerialInput
}

// Validate validates the request body
func (r *IssueTokenRequest) Validate() error {
	if r.To == "" {
		return apierrors.NewValidationError("to is required")
	}
	if len(r.MetadataRef) > constants.MAX_METADATA_REF_LENGTH {
		return apierrors.NewValidationError(fmt.Sprintf("metadata_ref exceeds %d characters", constants.MAX_METADATA_REF_LENGTH))
	}
	return nil
}

// SetSerialRequest represents the request body for binding a serial to a token
type SetSerialRequest struct {
	SerialInput
}

// TransferRequest represents the request body for requesting a transfer
type TransferRequest struct {
	To string `json:"to"`
}

// Validate validates the request body
func (r *TransferRequest) Validate() error {
	if r.To == "" {
		return apierrors.NewValidationError("to is required")
	}
	return nil
}

// ForcedTransferRequest represents the request body of the emergency and direct transfer endpoints
type ForcedTransferRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Validate validates the request body
func (r *ForcedTransferRequest) Validate() error {
	if r.From == "" {
		return apierrors.NewValidationError("from is required")
	}
	if r.To == "" {
		return apierrors.NewValidationError("to is required")
	}
	return nil
}

// ShopAuthorizationRequest represents the request body for authorizing or revoking a shop
type ShopAuthorizationRequest struct {
	Authorized *bool `json:"authorized"`
}

// Validate validates the request body
func (r *ShopAuthorizationRequest) Validate() error {
	if r.Authorized == nil {
		return apierrors.NewValidationError("authorized is required")
	}
	return nil
}

// TransferAdminRequest represents the request body for handing over administration
type TransferAdminRequest struct {
	NewAdmin string `json:"new_admin"`
}

// Validate validates the request body
func (r *TransferAdminRequest) Validate() error {
	if r.NewAdmin == "" {
		return apierrors.NewValidationError("new_admin is required")
	}
	return nil
}
