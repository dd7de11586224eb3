package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Chain represents the blockchain network identifier using CAIP-2 format
type Chain string

const (
	ChainEthereumMainnet Chain = "eip155:1"
	ChainEthereumSepolia Chain = "eip155:11155111"
)

// IsValidChain checks if a chain is valid
func IsValidChain(chain Chain) bool {
	return chain == ChainEthereumMainnet ||
		chain == ChainEthereumSepolia
}

// TokenID is the sequential identifier of an issued token. Zero is reserved and never issued.
type TokenID uint64

// String returns the decimal representation of the token ID
func (id TokenID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseTokenID parses a positive decimal token ID
func ParseTokenID(s string) (TokenID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token id %q: %w", s, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("invalid token id %q: token ids start at 1", s)
	}
	return TokenID(n), nil
}

// ParseAddress parses a hex address. Malformed input is reported as ErrInvalidAddress.
// The zero address parses successfully; callers decide where it is forbidden.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// IsZeroAddress reports whether the address is the null identity
func IsZeroAddress(address common.Address) bool {
	return address == (common.Address{})
}

// DID represents a Decentralized Identifier (W3C did:pkh method)
type DID string

// NewDID creates a new DID for an address on a chain
// Reference: https://github.com/w3c-ccg/did-pkh
func NewDID(address common.Address, chain Chain) DID {
	return DID(fmt.Sprintf("did:pkh:%s:%s", strings.ToLower(string(chain)), strings.ToLower(address.Hex())))
}

// String returns the string representation of the DID
func (d DID) String() string {
	return string(d)
}

// Address extracts the account address from a did:pkh identifier
func (d DID) Address() (common.Address, error) {
	// did:pkh:<namespace>:<reference>:<address>
	parts := strings.Split(string(d), ":")
	if len(parts) != 5 || parts[0] != "did" || parts[1] != "pkh" {
		return common.Address{}, fmt.Errorf("%w: malformed did %q", ErrInvalidAddress, string(d))
	}
	if !IsValidChain(Chain(parts[2] + ":" + parts[3])) {
		return common.Address{}, fmt.Errorf("%w: unsupported chain in did %q", ErrInvalidAddress, string(d))
	}
	return ParseAddress(parts[4])
}

// ParseIdentity resolves an authenticated subject into an address.
// Both plain hex addresses and did:pkh identifiers are accepted.
func ParseIdentity(subject string) (common.Address, error) {
	if strings.HasPrefix(subject, "did:") {
		return DID(subject).Address()
	}
	return ParseAddress(subject)
}

// HashSerialNumber returns the content hash of a plaintext serial number (Keccak-256 over UTF-8 bytes)
func HashSerialNumber(serialNumber string) common.Hash {
	return crypto.Keccak256Hash([]byte(serialNumber))
}

// ParseSerialHash parses a 0x-prefixed 32-byte hex digest
func ParseSerialHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrInvalidSerialHash, err)
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSerialHash, common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}

// Token is an issued certified asset
type Token struct {
	ID           TokenID
	Owner        common.Address
	MetadataRef  string
	IssuedAt     time.Time
	IssuingAgent common.Address
	// SerialHash is nil until a serial is bound; immutable afterwards
	SerialHash *common.Hash
}

// Metadata returns the immutable issuance metadata of the token
func (t *Token) Metadata() TokenMetadata {
	return TokenMetadata{
		MetadataRef:  t.MetadataRef,
		IssuedAt:     t.IssuedAt,
		IssuingAgent: t.IssuingAgent,
		SerialHash:   t.SerialHash,
	}
}

// TokenMetadata is the issuance metadata projection of a token
type TokenMetadata struct {
	MetadataRef  string
	IssuedAt     time.Time
	IssuingAgent common.Address
	SerialHash   *common.Hash
}

// HistoryEntry is one append-only record of a token's custody history.
// From is nil for the issuance entry.
type HistoryEntry struct {
	TokenID   TokenID
	From      *common.Address
	To        common.Address
	Timestamp time.Time
}

// IsIssuance reports whether the entry records the token's issuance
func (e HistoryEntry) IsIssuance() bool {
	return e.From == nil
}

// TransferState is the per-token state of the transfer protocol
type TransferState string

const (
	TransferStateIdle    TransferState = "idle"
	TransferStatePending TransferState = "pending"
)

// PendingTransfer is the in-flight record of a requested, not yet finalized ownership change
type PendingTransfer struct {
	TokenID           TokenID
	From              common.Address
	To                common.Address
	OwnerApproved     bool
	RecipientApproved bool
	RequestedAt       time.Time
}

// TransferStatus is the explicit protocol state of a token.
// Pending is the zero record when State is TransferStateIdle.
type TransferStatus struct {
	State   TransferState
	Pending PendingTransfer
}

// IdleTransferStatus returns the status of a token without a pending transfer
func IdleTransferStatus(tokenID TokenID) TransferStatus {
	return TransferStatus{
		State:   TransferStateIdle,
		Pending: PendingTransfer{TokenID: tokenID},
	}
}

// PendingTransferStatus returns the status of a token with a pending transfer
func PendingTransferStatus(pending PendingTransfer) TransferStatus {
	return TransferStatus{
		State:   TransferStatePending,
		Pending: pending,
	}
}

// Role classifies an identity against the access control facts
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleShop      Role = "shop"
	RoleCollector Role = "collector"
)

// RegistryInfo describes the registry as a whole
type RegistryInfo struct {
	Name            string
	Symbol          string
	Chain           Chain
	Admin           common.Address
	RegistryAddress common.Address
	TotalIssued     uint64
}
