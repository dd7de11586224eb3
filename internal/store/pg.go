package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/feral-file/ff-custody-ledger/internal/domain"
	"github.com/feral-file/ff-custody-ledger/internal/store/schema"
)

// ledgerLockKey is the advisory lock that serializes ledger writers across processes
const ledgerLockKey int64 = 0x6c6564676572

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// ConfigureConnectionPool configures the connection pool settings for a GORM database connection.
// It accesses the underlying *sql.DB and sets the pool configuration.
// If any of the pool settings are 0 or empty, reasonable defaults are used:
//   - MaxOpenConns: 20 (if 0)
//   - MaxIdleConns: 5 (if 0)
//   - ConnMaxLifetime: 5 minutes (if 0)
//   - ConnMaxIdleTime: 10 minutes (if 0)
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime =
		NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// NormalizeConnectionPoolSettings applies defaults and clamps pool settings into safe values.
//
// Defaults (when zero):
//   - MaxOpenConns: 20
//   - MaxIdleConns: 5
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
func NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (int, int, time.Duration, time.Duration) {
	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	// Ensure MaxIdleConns doesn't exceed MaxOpenConns
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	return maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime
}

// RunInTransaction runs fn in a database transaction holding the ledger advisory lock
func (s *pgStore) RunInTransaction(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", ledgerLockKey).Error; err != nil {
			return fmt.Errorf("failed to acquire ledger lock: %w", err)
		}

		return fn(&pgTx{pgView: pgView{db: tx}})
	})
}

// View runs fn in a read-only REPEATABLE READ transaction so every read sees the same snapshot
func (s *pgStore) View(ctx context.Context, fn func(v View) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&pgView{db: tx})
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
}

// GetNotifications retrieves notifications after the anchor cursor
func (s *pgStore) GetNotifications(ctx context.Context, filter domain.NotificationFilter) ([]*domain.Notification, uint64, error) {
	query := s.db.WithContext(ctx).Model(&schema.Notification{}).
		Where(`"cursor" > ?`, filter.Anchor)

	if filter.TokenID != nil {
		query = query.Where("token_id = ?", uint64(*filter.TokenID))
	}

	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		query = query.Where("type IN ?", types)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	query = query.Order(`"cursor" ASC`)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []schema.Notification
	if err := query.Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to query notifications: %w", err)
	}

	results := make([]*domain.Notification, 0, len(rows))
	for i := range rows {
		n, err := notificationFromSchema(&rows[i])
		if err != nil {
			return nil, 0, err
		}
		results = append(results, n)
	}

	return results, uint64(total), nil //nolint:gosec,G115
}

// GetLatestNotificationCursor returns the cursor of the last committed notification
func (s *pgStore) GetLatestNotificationCursor(ctx context.Context) (uint64, error) {
	var cursor uint64
	err := s.db.WithContext(ctx).Raw(`SELECT COALESCE(MAX("cursor"), 0) FROM notifications`).Scan(&cursor).Error
	if err != nil {
		return 0, fmt.Errorf("failed to get latest notification cursor: %w", err)
	}
	return cursor, nil
}

// SetKeyValue sets a key-value pair in the key-value store
func (s *pgStore) SetKeyValue(ctx context.Context, key string, value string) error {
	kv := schema.KeyValueStore{
		Key:   key,
		Value: value,
	}

	err := s.db.WithContext(ctx).Save(&kv).Error
	if err != nil {
		return fmt.Errorf("failed to set key-value: %w", err)
	}

	return nil
}

// GetKeyValue retrieves a value by key from the key-value store
func (s *pgStore) GetKeyValue(ctx context.Context, key string) (string, error) {
	var kv schema.KeyValueStore
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&kv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get key-value: %w", err)
	}

	return kv.Value, nil
}

type pgView struct {
	db *gorm.DB
}

func (v *pgView) GetToken(id domain.TokenID) (*domain.Token, error) {
	var token schema.Token
	err := v.db.Where("id = ?", uint64(id)).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	return tokenFromSchema(&token), nil
}

func (v *pgView) CountTokens() (uint64, error) {
	var count int64
	if err := v.db.Model(&schema.Token{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count tokens: %w", err)
	}
	return uint64(count), nil //nolint:gosec,G115
}

func (v *pgView) GetTokenHistory(id domain.TokenID) ([]domain.HistoryEntry, error) {
	var rows []schema.TransferHistory
	err := v.db.Where("token_id = ?", uint64(id)).Order("id ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get token history: %w", err)
	}

	entries := make([]domain.HistoryEntry, len(rows))
	for i, row := range rows {
		entries[i] = domain.HistoryEntry{
			TokenID:   domain.TokenID(row.TokenID),
			To:        common.HexToAddress(row.ToAddress),
			Timestamp: row.Timestamp,
		}
		if row.FromAddress != nil {
			from := common.HexToAddress(*row.FromAddress)
			entries[i].From = &from
		}
	}

	return entries, nil
}

func (v *pgView) GetTokenIDsByOwner(owner common.Address) ([]domain.TokenID, error) {
	var ids []uint64
	err := v.db.Model(&schema.Token{}).
		Where("owner = ?", owner.Hex()).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get tokens by owner: %w", err)
	}

	out := make([]domain.TokenID, len(ids))
	for i, id := range ids {
		out[i] = domain.TokenID(id)
	}
	return out, nil
}

func (v *pgView) GetTokenIDBySerial(hash common.Hash) (*domain.TokenID, error) {
	var token schema.Token
	err := v.db.Select("id").Where("serial_hash = ?", hash.Hex()).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get token by serial: %w", err)
	}

	id := domain.TokenID(token.ID)
	return &id, nil
}

func (v *pgView) GetPendingTransfer(id domain.TokenID) (*domain.PendingTransfer, error) {
	var row schema.PendingTransfer
	err := v.db.Where("token_id = ?", uint64(id)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pending transfer: %w", err)
	}

	p := pendingTransferFromSchema(&row)
	return &p, nil
}

func (v *pgView) GetPendingTransfersByAddress(address common.Address) ([]domain.PendingTransfer, error) {
	var rows []schema.PendingTransfer
	err := v.db.Where("from_address = ? OR to_address = ?", address.Hex(), address.Hex()).
		Order("token_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get pending transfers by address: %w", err)
	}

	out := make([]domain.PendingTransfer, len(rows))
	for i := range rows {
		out[i] = pendingTransferFromSchema(&rows[i])
	}
	return out, nil
}

func (v *pgView) IsShopAuthorized(address common.Address) (bool, error) {
	var count int64
	err := v.db.Model(&schema.ShopAuthorization{}).Where("address = ?", address.Hex()).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check shop authorization: %w", err)
	}
	return count > 0, nil
}

func (v *pgView) ListAuthorizedShops() ([]common.Address, error) {
	var addresses []string
	err := v.db.Model(&schema.ShopAuthorization{}).
		Order("LOWER(address) ASC").
		Pluck("address", &addresses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list authorized shops: %w", err)
	}

	out := make([]common.Address, len(addresses))
	for i, a := range addresses {
		out[i] = common.HexToAddress(a)
	}
	return out, nil
}

func (v *pgView) GetAdmin() (*common.Address, error) {
	var kv schema.KeyValueStore
	err := v.db.Where("key = ?", adminKey).First(&kv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}

	addr := common.HexToAddress(kv.Value)
	return &addr, nil
}

type pgTx struct {
	pgView
}

func (tx *pgTx) CreateToken(input CreateTokenInput) (*domain.Token, error) {
	// Gapless IDs: the ledger lock is held so MAX(id) cannot race
	var nextID uint64
	if err := tx.db.Raw("SELECT COALESCE(MAX(id), 0) + 1 FROM tokens").Scan(&nextID).Error; err != nil {
		return nil, fmt.Errorf("failed to allocate token id: %w", err)
	}

	token := schema.Token{
		ID:           nextID,
		Owner:        input.Owner.Hex(),
		MetadataRef:  input.MetadataRef,
		IssuedAt:     input.IssuedAt,
		IssuingAgent: input.IssuingAgent.Hex(),
	}
	if err := tx.db.Omit(clause.Associations).Create(&token).Error; err != nil {
		return nil, fmt.Errorf("failed to create token: %w", err)
	}

	return tokenFromSchema(&token), nil
}

func (tx *pgTx) UpdateTokenOwner(id domain.TokenID, owner common.Address) error {
	result := tx.db.Model(&schema.Token{}).Where("id = ?", uint64(id)).Update("owner", owner.Hex())
	if result.Error != nil {
		return fmt.Errorf("failed to update token owner: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrTokenNotFound
	}
	return nil
}

func (tx *pgTx) SetTokenSerial(id domain.TokenID, hash common.Hash) error {
	bound, err := tx.GetTokenIDBySerial(hash)
	if err != nil {
		return err
	}
	if bound != nil {
		return domain.ErrSerialHashAlreadyExists
	}

	value := hash.Hex()
	result := tx.db.Model(&schema.Token{}).
		Where("id = ? AND serial_hash IS NULL", uint64(id)).
		Update("serial_hash", value)
	if result.Error != nil {
		return fmt.Errorf("failed to set token serial: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	token, err := tx.GetToken(id)
	if err != nil {
		return err
	}
	if token == nil {
		return domain.ErrTokenNotFound
	}
	return domain.ErrSerialAlreadySet
}

func (tx *pgTx) AppendHistory(entry domain.HistoryEntry) error {
	row := schema.TransferHistory{
		TokenID:   uint64(entry.TokenID),
		ToAddress: entry.To.Hex(),
		Timestamp: entry.Timestamp,
	}
	if entry.From != nil {
		from := entry.From.Hex()
		row.FromAddress = &from
	}

	if err := tx.db.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (tx *pgTx) PutPendingTransfer(pending domain.PendingTransfer) error {
	row := schema.PendingTransfer{
		TokenID:           uint64(pending.TokenID),
		FromAddress:       pending.From.Hex(),
		ToAddress:         pending.To.Hex(),
		OwnerApproved:     pending.OwnerApproved,
		RecipientApproved: pending.RecipientApproved,
		RequestedAt:       pending.RequestedAt,
	}

	err := tx.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token_id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to put pending transfer: %w", err)
	}
	return nil
}

func (tx *pgTx) DeletePendingTransfer(id domain.TokenID) error {
	if err := tx.db.Where("token_id = ?", uint64(id)).Delete(&schema.PendingTransfer{}).Error; err != nil {
		return fmt.Errorf("failed to delete pending transfer: %w", err)
	}
	return nil
}

func (tx *pgTx) AuthorizeShop(address common.Address, authorizedBy common.Address) error {
	row := schema.ShopAuthorization{
		Address:      address.Hex(),
		AuthorizedBy: authorizedBy.Hex(),
	}

	err := tx.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to authorize shop: %w", err)
	}
	return nil
}

func (tx *pgTx) RevokeShop(address common.Address) error {
	if err := tx.db.Where("address = ?", address.Hex()).Delete(&schema.ShopAuthorization{}).Error; err != nil {
		return fmt.Errorf("failed to revoke shop: %w", err)
	}
	return nil
}

func (tx *pgTx) SetAdmin(address common.Address) error {
	kv := schema.KeyValueStore{
		Key:   adminKey,
		Value: address.Hex(),
	}
	if err := tx.db.Save(&kv).Error; err != nil {
		return fmt.Errorf("failed to set admin: %w", err)
	}
	return nil
}

func (tx *pgTx) AppendNotification(notification *domain.Notification) error {
	var nextCursor uint64
	if err := tx.db.Raw(`SELECT COALESCE(MAX("cursor"), 0) + 1 FROM notifications`).Scan(&nextCursor).Error; err != nil {
		return fmt.Errorf("failed to allocate notification cursor: %w", err)
	}

	payload, err := json.Marshal(notification.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	row := schema.Notification{
		Cursor:    nextCursor,
		ID:        notification.ID,
		Type:      string(notification.Type),
		Payload:   datatypes.JSON(payload),
		CreatedAt: notification.CreatedAt,
	}
	if notification.TokenID != nil {
		id := uint64(*notification.TokenID)
		row.TokenID = &id
	}

	if err := tx.db.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to append notification: %w", err)
	}

	notification.Cursor = nextCursor
	return nil
}

func tokenFromSchema(t *schema.Token) *domain.Token {
	token := &domain.Token{
		ID:           domain.TokenID(t.ID),
		Owner:        common.HexToAddress(t.Owner),
		MetadataRef:  t.MetadataRef,
		IssuedAt:     t.IssuedAt,
		IssuingAgent: common.HexToAddress(t.IssuingAgent),
	}
	if t.SerialHash != nil {
		h := common.HexToHash(*t.SerialHash)
		token.SerialHash = &h
	}
	return token
}

func pendingTransferFromSchema(p *schema.PendingTransfer) domain.PendingTransfer {
	return domain.PendingTransfer{
		TokenID:           domain.TokenID(p.TokenID),
		From:              common.HexToAddress(p.FromAddress),
		To:                common.HexToAddress(p.ToAddress),
		OwnerApproved:     p.OwnerApproved,
		RecipientApproved: p.RecipientApproved,
		RequestedAt:       p.RequestedAt,
	}
}

func notificationFromSchema(n *schema.Notification) (*domain.Notification, error) {
	notification := &domain.Notification{
		Cursor:    n.Cursor,
		ID:        n.ID,
		Type:      domain.NotificationType(n.Type),
		CreatedAt: n.CreatedAt,
	}
	if n.TokenID != nil {
		id := domain.TokenID(*n.TokenID)
		notification.TokenID = &id
	}
	if len(n.Payload) > 0 {
		if err := json.Unmarshal(n.Payload, &notification.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notification payload: %w", err)
		}
	}
	return notification, nil
}
