package store

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-custody-ledger/internal/domain"
)

const adminKey = "registry_admin"

type memoryStore struct {
	mu sync.RWMutex

	tokens        map[domain.TokenID]*domain.Token
	history       map[domain.TokenID][]domain.HistoryEntry
	serials       map[common.Hash]domain.TokenID
	pending       map[domain.TokenID]domain.PendingTransfer
	shops         map[common.Address]struct{}
	notifications []*domain.Notification
	keyValues     map[string]string
}

// NewMemoryStore creates an in-process store. State is lost when the process exits.
func NewMemoryStore() Store {
	return &memoryStore{
		tokens:    make(map[domain.TokenID]*domain.Token),
		history:   make(map[domain.TokenID][]domain.HistoryEntry),
		serials:   make(map[common.Hash]domain.TokenID),
		pending:   make(map[domain.TokenID]domain.PendingTransfer),
		shops:     make(map[common.Address]struct{}),
		keyValues: make(map[string]string),
	}
}

// RunInTransaction applies changes in place and replays the undo log when fn fails
func (s *memoryStore) RunInTransaction(ctx context.Context, fn func(tx Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{memoryView: memoryView{s: s}}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
		if err != nil {
			tx.rollback()
		}
	}()

	return fn(tx)
}

// View runs fn under the read lock
func (s *memoryStore) View(ctx context.Context, fn func(v View) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(&memoryView{s: s})
}

// GetNotifications retrieves notifications after the anchor cursor
func (s *memoryStore) GetNotifications(ctx context.Context, filter domain.NotificationFilter) ([]*domain.Notification, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Cursor n lives at index n-1
	start := min(filter.Anchor, uint64(len(s.notifications))) //nolint:gosec,G115

	results := []*domain.Notification{}
	var total uint64
	for _, n := range s.notifications[start:] {
		if !matchesNotificationFilter(n, filter) {
			continue
		}
		total++
		if filter.Limit > 0 && len(results) >= filter.Limit {
			continue
		}
		copied := *n
		results = append(results, &copied)
	}

	return results, total, nil
}

// GetLatestNotificationCursor returns the cursor of the last committed notification
func (s *memoryStore) GetLatestNotificationCursor(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return uint64(len(s.notifications)), nil
}

// SetKeyValue sets a key-value pair in the key-value store
func (s *memoryStore) SetKeyValue(ctx context.Context, key string, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.keyValues[key] = value
	return nil
}

// GetKeyValue retrieves a value by key from the key-value store
func (s *memoryStore) GetKeyValue(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.keyValues[key], nil
}

func matchesNotificationFilter(n *domain.Notification, filter domain.NotificationFilter) bool {
	if filter.TokenID != nil && (n.TokenID == nil || *n.TokenID != *filter.TokenID) {
		return false
	}
	if len(filter.Types) == 0 {
		return true
	}
	for _, t := range filter.Types {
		if n.Type == t {
			return true
		}
	}
	return false
}

func cloneToken(t *domain.Token) *domain.Token {
	c := *t
	if t.SerialHash != nil {
		h := *t.SerialHash
		c.SerialHash = &h
	}
	return &c
}

type memoryView struct {
	s *memoryStore
}

func (v *memoryView) GetToken(id domain.TokenID) (*domain.Token, error) {
	t, ok := v.s.tokens[id]
	if !ok {
		return nil, nil
	}
	return cloneToken(t), nil
}

func (v *memoryView) CountTokens() (uint64, error) {
	return uint64(len(v.s.tokens)), nil
}

func (v *memoryView) GetTokenHistory(id domain.TokenID) ([]domain.HistoryEntry, error) {
	entries := v.s.history[id]
	out := make([]domain.HistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (v *memoryView) GetTokenIDsByOwner(owner common.Address) ([]domain.TokenID, error) {
	ids := []domain.TokenID{}
	for id, t := range v.s.tokens {
		if t.Owner == owner {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (v *memoryView) GetTokenIDBySerial(hash common.Hash) (*domain.TokenID, error) {
	id, ok := v.s.serials[hash]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

func (v *memoryView) GetPendingTransfer(id domain.TokenID) (*domain.PendingTransfer, error) {
	p, ok := v.s.pending[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (v *memoryView) GetPendingTransfersByAddress(address common.Address) ([]domain.PendingTransfer, error) {
	out := []domain.PendingTransfer{}
	for _, p := range v.s.pending {
		if p.From == address || p.To == address {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out, nil
}

func (v *memoryView) IsShopAuthorized(address common.Address) (bool, error) {
	_, ok := v.s.shops[address]
	return ok, nil
}

func (v *memoryView) ListAuthorizedShops() ([]common.Address, error) {
	out := make([]common.Address, 0, len(v.s.shops))
	for addr := range v.s.shops {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out, nil
}

func (v *memoryView) GetAdmin() (*common.Address, error) {
	value, ok := v.s.keyValues[adminKey]
	if !ok {
		return nil, nil
	}
	addr := common.HexToAddress(value)
	return &addr, nil
}

type memoryTx struct {
	memoryView
	undo []func()
}

func (tx *memoryTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *memoryTx) CreateToken(input CreateTokenInput) (*domain.Token, error) {
	s := tx.s
	id := domain.TokenID(len(s.tokens) + 1)
	if _, exists := s.tokens[id]; exists {
		return nil, fmt.Errorf("failed to create token: id %d already taken", id)
	}

	token := &domain.Token{
		ID:           id,
		Owner:        input.Owner,
		MetadataRef:  input.MetadataRef,
		IssuedAt:     input.IssuedAt,
		IssuingAgent: input.IssuingAgent,
	}
	s.tokens[id] = token
	tx.undo = append(tx.undo, func() { delete(s.tokens, id) })

	return cloneToken(token), nil
}

func (tx *memoryTx) UpdateTokenOwner(id domain.TokenID, owner common.Address) error {
	token, ok := tx.s.tokens[id]
	if !ok {
		return domain.ErrTokenNotFound
	}
	previous := token.Owner
	token.Owner = owner
	tx.undo = append(tx.undo, func() { token.Owner = previous })
	return nil
}

func (tx *memoryTx) SetTokenSerial(id domain.TokenID, hash common.Hash) error {
	s := tx.s
	token, ok := s.tokens[id]
	if !ok {
		return domain.ErrTokenNotFound
	}
	if token.SerialHash != nil {
		return domain.ErrSerialAlreadySet
	}
	if _, bound := s.serials[hash]; bound {
		return domain.ErrSerialHashAlreadyExists
	}

	h := hash
	token.SerialHash = &h
	s.serials[hash] = id
	tx.undo = append(tx.undo, func() {
		token.SerialHash = nil
		delete(s.serials, hash)
	})
	return nil
}

func (tx *memoryTx) AppendHistory(entry domain.HistoryEntry) error {
	s := tx.s
	id := entry.TokenID
	if _, ok := s.tokens[id]; !ok {
		return domain.ErrTokenNotFound
	}
	previous := s.history[id]
	s.history[id] = append(previous[:len(previous):len(previous)], entry)
	tx.undo = append(tx.undo, func() {
		if len(previous) == 0 {
			delete(s.history, id)
			return
		}
		s.history[id] = previous
	})
	return nil
}

func (tx *memoryTx) PutPendingTransfer(pending domain.PendingTransfer) error {
	s := tx.s
	id := pending.TokenID
	if _, ok := s.tokens[id]; !ok {
		return domain.ErrTokenNotFound
	}
	previous, existed := s.pending[id]
	s.pending[id] = pending
	tx.undo = append(tx.undo, func() {
		if existed {
			s.pending[id] = previous
			return
		}
		delete(s.pending, id)
	})
	return nil
}

func (tx *memoryTx) DeletePendingTransfer(id domain.TokenID) error {
	s := tx.s
	previous, existed := s.pending[id]
	if !existed {
		return nil
	}
	delete(s.pending, id)
	tx.undo = append(tx.undo, func() { s.pending[id] = previous })
	return nil
}

func (tx *memoryTx) AuthorizeShop(address common.Address, _ common.Address) error {
	s := tx.s
	if _, ok := s.shops[address]; ok {
		return nil
	}
	s.shops[address] = struct{}{}
	tx.undo = append(tx.undo, func() { delete(s.shops, address) })
	return nil
}

func (tx *memoryTx) RevokeShop(address common.Address) error {
	s := tx.s
	if _, ok := s.shops[address]; !ok {
		return nil
	}
	delete(s.shops, address)
	tx.undo = append(tx.undo, func() { s.shops[address] = struct{}{} })
	return nil
}

func (tx *memoryTx) SetAdmin(address common.Address) error {
	s := tx.s
	previous, existed := s.keyValues[adminKey]
	s.keyValues[adminKey] = address.Hex()
	tx.undo = append(tx.undo, func() {
		if existed {
			s.keyValues[adminKey] = previous
			return
		}
		delete(s.keyValues, adminKey)
	})
	return nil
}

func (tx *memoryTx) AppendNotification(notification *domain.Notification) error {
	s := tx.s
	notification.Cursor = uint64(len(s.notifications)) + 1
	copied := *notification
	s.notifications = append(s.notifications, &copied)
	tx.undo = append(tx.undo, func() {
		s.notifications = s.notifications[:len(s.notifications)-1]
	})
	return nil
}
