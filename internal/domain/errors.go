package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the caller lacks the required privilege
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnauthorizedIssuance is returned when the caller is neither the administrator nor an authorized shop
	ErrUnauthorizedIssuance = fmt.Errorf("unauthorized issuance: %w", ErrUnauthorized)

	// ErrInvalidAddress is returned for the null identity or the registry identity where forbidden
	ErrInvalidAddress = errors.New("invalid address")

	// ErrTokenNotFound is returned when a token is not found
	ErrTokenNotFound = errors.New("token not found")

	// ErrTransferNotFound is returned when a token has no pending transfer
	ErrTransferNotFound = errors.New("transfer not found")

	// ErrTransferAlreadyPending is returned when a token already has a pending transfer
	ErrTransferAlreadyPending = errors.New("transfer already pending")

	// ErrNotOwner is returned when the caller is not the current owner of the token
	ErrNotOwner = errors.New("caller is not the token owner")

	// ErrNotRecipient is returned when the caller is not the recipient of the pending transfer
	ErrNotRecipient = errors.New("caller is not the transfer recipient")

	// ErrUnauthorizedCancellation is returned when the caller is neither party of the pending transfer
	ErrUnauthorizedCancellation = errors.New("unauthorized cancellation")

	// ErrDirectTransferDisabled is returned for every transfer that bypasses the dual-approval protocol
	ErrDirectTransferDisabled = errors.New("direct transfer disabled")

	// ErrInvalidSerialHash is returned for the zero serial hash
	ErrInvalidSerialHash = errors.New("invalid serial hash")

	// ErrSerialAlreadySet is returned when the token is already bound to a serial hash
	ErrSerialAlreadySet = errors.New("serial already set")

	// ErrSerialHashAlreadyExists is returned when the serial hash is bound to another token
	ErrSerialHashAlreadyExists = errors.New("serial hash already exists")

	// ErrSerialNotFound is returned when a serial hash (or a token's serial binding) does not exist
	ErrSerialNotFound = errors.New("serial not found")

	// ErrAlreadyAuthorized is returned when authorizing a shop that is already authorized
	ErrAlreadyAuthorized = errors.New("shop already authorized")

	// ErrNotAuthorized is returned when revoking a shop that is not authorized
	ErrNotAuthorized = errors.New("shop not authorized")
)
