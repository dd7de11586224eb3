package dto

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-custody-ledger/internal/domain"
	"github.com/feral-file/ff-custody-ledger/internal/messaging"
)

// RegistryResponse describes the registry
type RegistryResponse struct {
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	Chain           string `json:"chain"`
	Admin           string `json:"admin"`
	RegistryAddress string `json:"registry_address"`
	TotalIssued     uint64 `json:"total_issued"`
}

// TokenResponse represents a token with its issuance metadata
type TokenResponse struct {
	ID           string    `json:"id"`
	Owner        string    `json:"owner"`
	MetadataRef  string    `json:"metadata_ref"`
	IssuedAt     time.Time `json:"issued_at"`
	IssuingAgent string    `json:"issuing_agent"`
	SerialHash   *string   `json:"serial_hash,omitempty"`
	Transfer     string    `json:"transfer_state"`
}

// IssueTokenResponse is returned after a successful issuance
type IssueTokenResponse struct {
	ID string `json:"id"`
}

// HistoryEntryResponse is one custody history record. From is omitted for the issuance entry.
type HistoryEntryResponse struct {
	From      *string   `json:"from,omitempty"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryResponse lists a token's custody history in append order
type HistoryResponse struct {
	TokenID string                 `json:"token_id"`
	Entries []HistoryEntryResponse `json:"entries"`
}

// PendingTransferResponse represents a pending transfer record
type PendingTransferResponse struct {
	TokenID           string     `json:"token_id"`
	From              string     `json:"from"`
	To                string     `json:"to"`
	OwnerApproved     bool       `json:"owner_approved"`
	RecipientApproved bool       `json:"recipient_approved"`
	RequestedAt       *time.Time `json:"requested_at,omitempty"`
}

// TransferStatusResponse is the protocol state of a token
type TransferStatusResponse struct {
	TokenID string                   `json:"token_id"`
	State   string                   `json:"state"`
	Pending *PendingTransferResponse `json:"pending,omitempty"`
}

// PendingTransferListResponse lists the pending transfers an address is party to
type PendingTransferListResponse struct {
	Address   string                    `json:"address"`
	Transfers []PendingTransferResponse `json:"transfers"`
}

// TokenListResponse lists token ids owned by an address
type TokenListResponse struct {
	Owner    string   `json:"owner"`
	TokenIDs []string `json:"token_ids"`
}

// ShopListResponse lists authorized shops
type ShopListResponse struct {
	Shops []string `json:"shops"`
}

// ShopResponse is the authorization state of one shop
type ShopResponse struct {
	Address    string `json:"address"`
	Authorized bool   `json:"authorized"`
}

// RoleResponse classifies an address
type RoleResponse struct {
	Address string `json:"address"`
	Role    string `json:"role"`
}

// SerialLookupResponse is the token bound to a serial hash
type SerialLookupResponse struct {
	SerialHash string `json:"serial_hash"`
	TokenID    string `json:"token_id"`
}

// SerialExistsResponse reports whether a serial hash is bound
type SerialExistsResponse struct {
	SerialHash string `json:"serial_hash"`
	Exists     bool   `json:"exists"`
}

// SerialVerifyResponse reports whether a serial matches the token's bound serial
type SerialVerifyResponse struct {
	TokenID string `json:"token_id"`
	Valid   bool   `json:"valid"`
}

// NotificationListResponse pages the notification feed
type NotificationListResponse struct {
	Items      []messaging.NotificationMessage `json:"items"`
	Total      uint64                          `json:"total"`
	NextAnchor *uint64                         `json:"next_anchor,omitempty"`
}

// NewRegistryResponse maps registry info to its response
func NewRegistryResponse(info *domain.RegistryInfo) RegistryResponse {
	resp := RegistryResponse{
		Name:            info.Name,
		Symbol:          info.Symbol,
		Chain:           string(info.Chain),
		RegistryAddress: info.RegistryAddress.Hex(),
		TotalIssued:     info.TotalIssued,
	}
	if !domain.IsZeroAddress(info.Admin) {
		resp.Admin = info.Admin.Hex()
	}
	return resp
}

// NewTokenResponse maps a token and its transfer state to its response
func NewTokenResponse(token *domain.Token, state domain.TransferState) TokenResponse {
	return TokenResponse{
		ID:           token.ID.String(),
		Owner:        token.Owner.Hex(),
		MetadataRef:  token.MetadataRef,
		IssuedAt:     token.IssuedAt.UTC(),
		IssuingAgent: token.IssuingAgent.Hex(),
		SerialHash:   hashString(token.SerialHash),
		Transfer:     string(state),
	}
}

// NewHistoryResponse maps history entries to their response
func NewHistoryResponse(tokenID domain.TokenID, entries []domain.HistoryEntry) HistoryResponse {
	resp := HistoryResponse{
		TokenID: tokenID.String(),
		Entries: make([]HistoryEntryResponse, 0, len(entries)),
	}
	for _, e := range entries {
		entry := HistoryEntryResponse{
			To:        e.To.Hex(),
			Timestamp: e.Timestamp.UTC(),
		}
		if e.From != nil {
			from := e.From.Hex()
			entry.From = &from
		}
		resp.Entries = append(resp.Entries, entry)
	}
	return resp
}

// NewPendingTransferResponse maps a pending transfer to its response
func NewPendingTransferResponse(p domain.PendingTransfer) PendingTransferResponse {
	resp := PendingTransferResponse{
		TokenID:           p.TokenID.String(),
		From:              p.From.Hex(),
		To:                p.To.Hex(),
		OwnerApproved:     p.OwnerApproved,
		RecipientApproved: p.RecipientApproved,
	}
	if !p.RequestedAt.IsZero() {
		requestedAt := p.RequestedAt.UTC()
		resp.RequestedAt = &requestedAt
	}
	return resp
}

// NewTransferStatusResponse maps a transfer status to its response
func NewTransferStatusResponse(tokenID domain.TokenID, status domain.TransferStatus) TransferStatusResponse {
	resp := TransferStatusResponse{
		TokenID: tokenID.String(),
		State:   string(status.State),
	}
	if status.State == domain.TransferStatePending {
		pending := NewPendingTransferResponse(status.Pending)
		resp.Pending = &pending
	}
	return resp
}

// NewNotificationListResponse maps a page of notifications to its response
func NewNotificationListResponse(notifications []*domain.Notification, total uint64) NotificationListResponse {
	resp := NotificationListResponse{
		Items: make([]messaging.NotificationMessage, 0, len(notifications)),
		Total: total,
	}
	for _, n := range notifications {
		resp.Items = append(resp.Items, messaging.NewNotificationMessage(n))
	}
	if total > uint64(len(notifications)) && len(notifications) > 0 {
		next := notifications[len(notifications)-1].Cursor
		resp.NextAnchor = &next
	}
	return resp
}

// AddressStrings returns the hex form of each address
func AddressStrings(addresses []common.Address) []string {
	result := make([]string, 0, len(addresses))
	for _, a := range addresses {
		result = append(result, a.Hex())
	}
	return result
}

// TokenIDStrings returns the decimal form of each token id
func TokenIDStrings(ids []domain.TokenID) []string {
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		result = append(result, id.String())
	}
	return result
}

func hashString(h *common.Hash) *string {
	if h == nil {
		return nil
	}
	s := h.Hex()
	return &s
}
