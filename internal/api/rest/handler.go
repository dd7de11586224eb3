package rest

import (
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/feral-file/ff-custody-ledger/internal/api/middleware"
	"github.com/feral-file/ff-custody-ledger/internal/api/shared/dto"
	apierrors "github.com/feral-file/ff-custody-ledger/internal/api/shared/errors"
	"github.com/feral-file/ff-custody-ledger/internal/domain"
	"github.com/feral-file/ff-custody-ledger/internal/ledger"
)

// Handler defines the interface for REST API handlers
// This interface allows for easy mocking and testing
type Handler interface {
	// GetRegistry returns the registry description
	// GET /api/v1/registry
	GetRegistry(c *gin.Context)

	// TransferAdmin hands administration to another identity (admin only)
	// PUT /api/v1/registry/admin
	TransferAdmin(c *gin.Context)

	// ListShops lists authorized shops
	// GET /api/v1/shops
	ListShops(c *gin.Context)

	// GetShop returns the authorization state of a shop
	// GET /api/v1/shops/:address
	GetShop(c *gin.Context)

	// SetShopAuthorization authorizes or revokes a shop (admin only)
	// PUT /api/v1/shops/:address
	SetShopAuthorization(c *gin.Context)

	// GetRole classifies an address as admin, shop or collector
	// GET /api/v1/accounts/:address/role
	GetRole(c *gin.Context)

	// ListOwnedTokens lists token ids owned by an address
	// GET /api/v1/accounts/:address/tokens
	ListOwnedTokens(c *gin.Context)

	// ListPendingTransfers lists pending transfers the address is party to
	// GET /api/v1/accounts/:address/transfers
	ListPendingTransfers(c *gin.Context)

	// IssueToken issues a token, optionally binding a serial atomically (admin or shop)
	// POST /api/v1/tokens
	IssueToken(c *gin.Context)

	// GetToken returns a token with its metadata and transfer state
	// GET /api/v1/tokens/:id
	GetToken(c *gin.Context)

	// GetHistory returns the custody history of a token
	// GET /api/v1/tokens/:id/history
	GetHistory(c *gin.Context)

	// GetTransferStatus returns the transfer protocol state of a token
	// GET /api/v1/tokens/:id/transfer
	GetTransferStatus(c *gin.Context)

	// SetSerial binds a serial to a token (admin only)
	// PUT /api/v1/tokens/:id/serial
	SetSerial(c *gin.Context)

	// VerifySerial checks a serial against the token's bound serial
	// GET /api/v1/tokens/:id/serial/verify?serial_hash=<hash>|serial_number=<serial>
	VerifySerial(c *gin.Context)

	// RequestTransfer opens a transfer to a recipient (owner)
	// POST /api/v1/tokens/:id/transfer/request
	RequestTransfer(c *gin.Context)

	// ApproveTransfer accepts a pending transfer and moves ownership (recipient)
	// POST /api/v1/tokens/:id/transfer/approve
	ApproveTransfer(c *gin.Context)

	// CancelTransfer discards a pending transfer (sender or recipient)
	// POST /api/v1/tokens/:id/transfer/cancel
	CancelTransfer(c *gin.Context)

	// EmergencyTransfer moves ownership bypassing the protocol (admin only)
	// POST /api/v1/tokens/:id/transfer/emergency
	EmergencyTransfer(c *gin.Context)

	// DirectTransfer is always rejected
	// POST /api/v1/tokens/:id/transfer/direct
	DirectTransfer(c *gin.Context)

	// LookupSerial resolves a serial hash to its token
	// GET /api/v1/serials/:hash
	LookupSerial(c *gin.Context)

	// SerialExists reports whether a serial hash is bound
	// GET /api/v1/serials/:hash/exists
	SerialExists(c *gin.Context)

	// GetNotifications pages the notification feed in ascending cursor order
	// GET /api/v1/notifications?anchor=<cursor>&limit=<n>&token_id=<id>&type=<t1,t2>
	GetNotifications(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	ledger ledger.Ledger
}

// NewHandler creates a new REST API handler over the ledger
func NewHandler(l ledger.Ledger) Handler {
	return &handler{ledger: l}
}

// GetRegistry returns the registry description
func (h *handler) GetRegistry(c *gin.Context) {
	info, err := h.ledger.Info(c.Request.Context())
	if err != nil {
		respondLedgerError(c, err, "Failed to get registry info")
		return
	}

	c.JSON(http.StatusOK, dto.NewRegistryResponse(info))
}

// TransferAdmin hands administration to another identity
func (h *handler) TransferAdmin(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	var req dto.TransferAdminRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err)
		return
	}

	newAdmin, ok := parseAddressValue(c, req.NewAdmin)
	if !ok {
		return
	}

	if err := h.ledger.TransferAdmin(c.Request.Context(), caller, newAdmin); err != nil {
		respondLedgerError(c, err, "Failed to transfer admin")
		return
	}

	c.Status(http.StatusNoContent)
}

// ListShops lists authorized shops
func (h *handler) ListShops(c *gin.Context) {
	shops, err := h.ledger.ListAuthorizedShops(c.Request.Context())
	if err != nil {
		respondLedgerError(c, err, "Failed to list shops")
		return
	}

	c.JSON(http.StatusOK, dto.ShopListResponse{Shops: dto.AddressStrings(shops)})
}

// GetShop returns the authorization state of a shop
func (h *handler) GetShop(c *gin.Context) {
	address, ok := parseAddressParam(c)
	if !ok {
		return
	}

	authorized, err := h.ledger.IsAuthorizedShop(c.Request.Context(), address)
	if err != nil {
		respondLedgerError(c, err, "Failed to get shop", zap.String("address", address.Hex()))
		return
	}

	c.JSON(http.StatusOK, dto.ShopResponse{Address: address.Hex(), Authorized: authorized})
}

// SetShopAuthorization authorizes or revokes a shop
func (h *handler) SetShopAuthorization(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	address, ok := parseAddressParam(c)
	if !ok {
		return
	}

	var req dto.ShopAuthorizationRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err)
		return
	}

	if err := h.ledger.SetShopAuthorization(c.Request.Context(), caller, address, *req.Authorized); err != nil {
		respondLedgerError(c, err, "Failed to set shop authorization", zap.String("address", address.Hex()))
		return
	}

	c.JSON(http.StatusOK, dto.ShopResponse{Address: address.Hex(), Authorized: *req.Authorized})
}

// GetRole classifies an address
func (h *handler) GetRole(c *gin.Context) {
	address, ok := parseAddressParam(c)
	if !ok {
		return
	}

	role, err := h.ledger.RoleOf(c.Request.Context(), address)
	if err != nil {
		respondLedgerError(c, err, "Failed to get role", zap.String("address", address.Hex()))
		return
	}

	c.JSON(http.StatusOK, dto.RoleResponse{Address: address.Hex(), Role: string(role)})
}

// ListOwnedTokens lists token ids owned by an address
func (h *handler) ListOwnedTokens(c *gin.Context) {
	address, ok := parseAddressParam(c)
	if !ok {
		return
	}

	ids, err := h.ledger.TokensOwnedBy(c.Request.Context(), address)
	if err != nil {
		respondLedgerError(c, err, "Failed to list tokens", zap.String("address", address.Hex()))
		return
	}

	c.JSON(http.StatusOK, dto.TokenListResponse{Owner: address.Hex(), TokenIDs: dto.TokenIDStrings(ids)})
}

// ListPendingTransfers lists pending transfers the address is party to
func (h *handler) ListPendingTransfers(c *gin.Context) {
	address, ok := parseAddressParam(c)
	if !ok {
		return
	}

	transfers, err := h.ledger.PendingTransfersFor(c.Request.Context(), address)
	if err != nil {
		respondLedgerError(c, err, "Failed to list transfers", zap.String("address", address.Hex()))
		return
	}

	resp := dto.PendingTransferListResponse{
		Address:   address.Hex(),
		Transfers: make([]dto.PendingTransferResponse, 0, len(transfers)),
	}
	for _, t := range transfers {
		resp.Transfers = append(resp.Transfers, dto.NewPendingTransferResponse(t))
	}

	c.JSON(http.StatusOK, resp)
}

// IssueToken issues a token
func (h *handler) IssueToken(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	var req dto.IssueTokenRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err)
		return
	}

	to, ok := parseAddressValue(c, req.To)
	if !ok {
		return
	}

	issue := ledger.IssueRequest{
		To:          to,
		MetadataRef: req.MetadataRef,
	}
	if req.Present() {
		hash, err := req.Hash()
		if err != nil {
			respondSerialInputError(c, err)
			return
		}
		issue.SerialHash = &hash
	}

	id, err := h.ledger.Issue(c.Request.Context(), caller, issue)
	if err != nil {
		respondLedgerError(c, err, "Failed to issue token")
		return
	}

	c.JSON(http.StatusCreated, dto.IssueTokenResponse{ID: id.String()})
}

// GetToken returns a token with its metadata and transfer state
func (h *handler) GetToken(c *gin.Context) {
	tokenID, ok := parseTokenIDParam(c)
	if !ok {
		return
	}

	token, status, err := h.ledger.GetTokenState(c.Request.Context(), tokenID)
	if err != nil {
		respondLedgerError(c, err, "Failed to get token", zap.Uint64("token_id", uint64(tokenID)))
		return
	}

	c.JSON(http.StatusOK, dto.NewTokenResponse(token, status.State))
}

// GetHistory returns the custody history of a token
func (h *handler) GetHistory(c *gin.Context) {
	tokenID, ok := parseTokenIDParam(c)
	if !ok {
		return
	}

	entries, err := h.ledger.GetHistory(c.Request.Context(), tokenID)
	if err != nil {
		respondLedgerError(c, err, "Failed to get history", zap.Uint64("token_id", uint64(tokenID)))
		return
	}

	c.JSON(http.StatusOK, dto.NewHistoryResponse(tokenID, entries))
}

// GetTransferStatus returns the transfer protocol state of a token
func (h *handler) GetTransferStatus(c *gin.Context) {
	tokenID, ok := parseTokenIDParam(c)
	if !ok {
		return
	}

	exists, err := h.ledger.Exists(c.Request.Context(), tokenID)
	if err != nil {
		respondLedgerError(c, err, "Failed to get transfer status", zap.Uint64("token_id", uint64(tokenID)))
		return
	}
	if !exists {
		respondLedgerError(c, domain.ErrTokenNotFound, "Failed to get transfer status")
		return
	}

	status, err := h.ledger.GetTransferStatus(c.Request.Context(), tokenID)
	if err != nil {
		respondLedgerError(c, err, "Failed to get transfer status", zap.Uint64("token_id", uint64(tokenID)))
		return
	}

	c.JSON(http.StatusOK, dto.NewTransferStatusResponse(tokenID, status))
}

// SetSerial binds a serial to a token
func (h *handler) SetSerial(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	tokenID, ok := parseTokenIDParam(c)
	if !ok {
		return
	}

	var req dto.SetSerialRequest
	if !bindJSON(c, &req) {
		return
	}

	hash, err := req.Hash()
	if err != nil {
		respondSerialInputError(c, err)
		return
	}

	if err := h.ledger.RegisterSerial(c.Request.Context(), caller, tokenID, hash); err != nil {
		respondLedgerError(c, err, "Failed to set serial", zap.Uint64("token_id", uint64(tokenID)))
		return
	}

	c.Status(http.StatusNoContent)
}

// VerifySerial checks a serial against the token's bound serial
func (h *handler) VerifySerial(c *gin.Context) {
	tokenID, ok := parseTokenIDParam(c)
	if !ok {
		return
	}

	var input dto.SerialInput
	if err := c.ShouldBindQuery(&input); err != nil {
		respondValidationError(c, err)
		return
	}

	hash, err := input.Hash()
	if err != nil {
		respondSerialInputError(c, err)
		return
	}

	valid, err := h.ledger.VerifySerial(c.Request.Context(), tokenID, hash)
	if err != nil {
		respondLedgerError(c, err, "Failed to verify serial", zap.Uint64("token_id", uint64(tokenID)))
		return
	}

	c.JSON(http.StatusOK, dto.SerialVerifyResponse{TokenID: tokenID.String(), Valid: valid})
}

// RequestTransfer opens a transfer to a recipient
func (h *handler) RequestTransfer(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	tokenID, ok := parseTokenIDParam(c)
	if !ok {
		return
	}

	var req dto.TransferRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err)
		return
	}

	to, ok := parseAddressValue(c, req.To)
	if !ok {
		return
	}

	if err := h.ledger.RequestTransfer(c.Request.Context(), caller, tokenID, to); err != nil {
		respondLedgerError(c, err, "Failed to request transfer", zap.Uint64("token_id", uint64(tokenID)))
		return
	}

	h.respondTransferStatus(c, tokenID, http.StatusAccepted)
}

// ApproveTransfer accepts a pending transfer
func (h *handler) ApproveTransfer(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	tokenID, ok := parseTokenIDParam(c)
	if !ok {
		return
	}

	if err := h.ledger.ApproveReceive(c.Request.Context(), caller, tokenID); err != nil {
		respondLedgerError(c, err, "Failed to approve transfer", zap.Uint64("token_id", uint64(tokenID)))
		return
	}

	h.respondTransferStatus(c, tokenID, http.StatusOK)
}

// CancelTransfer discards a pending transfer
func (h *handler) CancelTransfer(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	tokenID, ok := parseTokenIDParam(c)
	if !ok {
		return
	}

	if err := h.ledger.CancelTransfer(c.Request.Context(), caller, tokenID); err != nil {
		respondLedgerError(c, err, "Failed to cancel transfer", zap.Uint64("token_id", uint64(tokenID)))
		return
	}

	h.respondTransferStatus(c, tokenID, http.StatusOK)
}

// EmergencyTransfer moves ownership bypassing the protocol
func (h *handler) EmergencyTransfer(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	tokenID, ok := parseTokenIDParam(c)
	if !ok {
		return
	}

	var req dto.ForcedTransferRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err)
		return
	}

	from, ok := parseAddressValue(c, req.From)
	if !ok {
		return
	}
	to, ok := parseAddressValue(c, req.To)
	if !ok {
		return
	}

	if err := h.ledger.EmergencyTransfer(c.Request.Context(), caller, from, to, tokenID); err != nil {
		respondLedgerError(c, err, "Failed to execute emergency transfer", zap.Uint64("token_id", uint64(tokenID)))
		return
	}

	h.respondTransferStatus(c, tokenID, http.StatusOK)
}

// DirectTransfer is always rejected; the body and token id are not read
func (h *handler) DirectTransfer(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	err := h.ledger.DirectTransfer(c.Request.Context(), caller, common.Address{}, common.Address{}, 0)
	respondLedgerError(c, err, "Failed to transfer", zap.String("token_id", c.Param("id")))
}

// LookupSerial resolves a serial hash to its token
func (h *handler) LookupSerial(c *gin.Context) {
	hash, ok := parseSerialHashParam(c)
	if !ok {
		return
	}

	tokenID, err := h.ledger.LookupBySerial(c.Request.Context(), hash)
	if err != nil {
		respondLedgerError(c, err, "Failed to look up serial")
		return
	}

	c.JSON(http.StatusOK, dto.SerialLookupResponse{SerialHash: hash.Hex(), TokenID: tokenID.String()})
}

// SerialExists reports whether a serial hash is bound
func (h *handler) SerialExists(c *gin.Context) {
	hash, ok := parseSerialHashParam(c)
	if !ok {
		return
	}

	exists, err := h.ledger.SerialExists(c.Request.Context(), hash)
	if err != nil {
		respondLedgerError(c, err, "Failed to check serial")
		return
	}

	c.JSON(http.StatusOK, dto.SerialExistsResponse{SerialHash: hash.Hex(), Exists: exists})
}

// GetNotifications pages the notification feed
func (h *handler) GetNotifications(c *gin.Context) {
	queryParams, err := ParseGetNotificationsQuery(c)
	if err != nil {
		respondValidationError(c, err)
		return
	}

	filter, err := queryParams.Filter()
	if err != nil {
		respondValidationError(c, err)
		return
	}

	notifications, total, err := h.ledger.GetNotifications(c.Request.Context(), filter)
	if err != nil {
		respondLedgerError(c, err, "Failed to get notifications")
		return
	}

	c.JSON(http.StatusOK, dto.NewNotificationListResponse(notifications, total))
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "ff-custody-ledger-api",
	})
}

// respondTransferStatus answers a transfer mutation with the resulting protocol state
func (h *handler) respondTransferStatus(c *gin.Context, tokenID domain.TokenID, statusCode int) {
	status, err := h.ledger.GetTransferStatus(c.Request.Context(), tokenID)
	if err != nil {
		respondLedgerError(c, err, "Failed to get transfer status", zap.Uint64("token_id", uint64(tokenID)))
		return
	}
	c.JSON(statusCode, dto.NewTransferStatusResponse(tokenID, status))
}

// mustCaller returns the authenticated caller; routes without Auth never reach here
func mustCaller(c *gin.Context) (common.Address, bool) {
	caller, ok := middleware.Caller(c)
	if !ok {
		respondLedgerError(c, fmt.Errorf("caller missing from authenticated route %s", c.FullPath()), "Failed to resolve caller")
		return common.Address{}, false
	}
	return caller, true
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return false
	}
	return true
}

func parseTokenIDParam(c *gin.Context) (domain.TokenID, bool) {
	tokenID, err := domain.ParseTokenID(c.Param("id"))
	if err != nil {
		respondBadRequest(c, "Invalid token id", err.Error())
		return 0, false
	}
	return tokenID, true
}

func parseAddressParam(c *gin.Context) (common.Address, bool) {
	return parseAddressValue(c, c.Param("address"))
}

func parseAddressValue(c *gin.Context, value string) (common.Address, bool) {
	address, err := domain.ParseAddress(value)
	if err != nil {
		respondLedgerError(c, err, "Invalid address")
		return common.Address{}, false
	}
	return address, true
}

func parseSerialHashParam(c *gin.Context) (common.Hash, bool) {
	hash, err := domain.ParseSerialHash(c.Param("hash"))
	if err != nil {
		respondLedgerError(c, err, "Invalid serial hash")
		return common.Hash{}, false
	}
	return hash, true
}

// respondSerialInputError distinguishes malformed hashes from missing or conflicting fields
func respondSerialInputError(c *gin.Context, err error) {
	if _, _, isLedger := apierrors.FromLedgerError(err); isLedger {
		respondLedgerError(c, err, "Invalid serial")
		return
	}
	respondValidationError(c, err)
}
