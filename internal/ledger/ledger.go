package ledger

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/feral-file/ff-custody-ledger/internal/adapter"
	"github.com/feral-file/ff-custody-ledger/internal/domain"
	"github.com/feral-file/ff-custody-ledger/internal/logger"
	"github.com/feral-file/ff-custody-ledger/internal/metrics"
	"github.com/feral-file/ff-custody-ledger/internal/store"
)

// ErrClosed is returned for operations submitted after Close
var ErrClosed = errors.New("ledger closed")

// Config holds the registry identity and engine settings
type Config struct {
	Name            string
	Symbol          string
	Chain           domain.Chain
	RegistryAddress common.Address
	// InitialAdmin becomes the administrator when the store has none
	InitialAdmin common.Address
	// QueueSize is the capacity of the write queue
	QueueSize int
}

// IssueRequest describes a token issuance
type IssueRequest struct {
	To          common.Address
	MetadataRef string
	// SerialHash is bound atomically with the issuance when non-nil
	SerialHash *common.Hash
}

// Ledger is the custody ledger: access control, serial registry, token store and transfer protocol.
// Mutations are serialized through a single writer; reads run on consistent snapshots.
type Ledger interface {
	// Access control
	SetShopAuthorization(ctx context.Context, caller, shop common.Address, authorize bool) error
	TransferAdmin(ctx context.Context, caller, newAdmin common.Address) error
	IsAdmin(ctx context.Context, address common.Address) (bool, error)
	IsIssuer(ctx context.Context, address common.Address) (bool, error)
	IsAuthorizedShop(ctx context.Context, address common.Address) (bool, error)
	ListAuthorizedShops(ctx context.Context) ([]common.Address, error)
	RoleOf(ctx context.Context, address common.Address) (domain.Role, error)

	// Serial registry
	RegisterSerial(ctx context.Context, caller common.Address, tokenID domain.TokenID, hash common.Hash) error
	LookupBySerial(ctx context.Context, hash common.Hash) (domain.TokenID, error)
	SerialExists(ctx context.Context, hash common.Hash) (bool, error)
	VerifySerial(ctx context.Context, tokenID domain.TokenID, hash common.Hash) (bool, error)
	HasSerial(ctx context.Context, tokenID domain.TokenID) (bool, error)
	SerialOf(ctx context.Context, tokenID domain.TokenID) (common.Hash, error)

	// Token store
	Issue(ctx context.Context, caller common.Address, req IssueRequest) (domain.TokenID, error)
	GetToken(ctx context.Context, tokenID domain.TokenID) (*domain.Token, error)
	GetMetadata(ctx context.Context, tokenID domain.TokenID) (*domain.TokenMetadata, error)
	GetHistory(ctx context.Context, tokenID domain.TokenID) ([]domain.HistoryEntry, error)
	TokensOwnedBy(ctx context.Context, owner common.Address) ([]domain.TokenID, error)

	// Transfer protocol
	RequestTransfer(ctx context.Context, caller common.Address, tokenID domain.TokenID, to common.Address) error
	ApproveReceive(ctx context.Context, caller common.Address, tokenID domain.TokenID) error
	CancelTransfer(ctx context.Context, caller common.Address, tokenID domain.TokenID) error
	EmergencyTransfer(ctx context.Context, caller, from, to common.Address, tokenID domain.TokenID) error
	DirectTransfer(ctx context.Context, caller, from, to common.Address, tokenID domain.TokenID) error

	// Query facade
	Info(ctx context.Context) (*domain.RegistryInfo, error)
	Exists(ctx context.Context, tokenID domain.TokenID) (bool, error)
	OwnerOf(ctx context.Context, tokenID domain.TokenID) (common.Address, error)
	TotalIssued(ctx context.Context) (uint64, error)
	HasPendingTransfer(ctx context.Context, tokenID domain.TokenID) (bool, error)
	GetPendingTransfer(ctx context.Context, tokenID domain.TokenID) (domain.PendingTransfer, error)
	GetTransferStatus(ctx context.Context, tokenID domain.TokenID) (domain.TransferStatus, error)
	// GetTokenState returns the token and its transfer status read from one snapshot
	GetTokenState(ctx context.Context, tokenID domain.TokenID) (*domain.Token, domain.TransferStatus, error)
	PendingTransfersFor(ctx context.Context, address common.Address) ([]domain.PendingTransfer, error)

	// Notification feed
	GetNotifications(ctx context.Context, filter domain.NotificationFilter) ([]*domain.Notification, uint64, error)
	// Subscribe returns a channel signalled after every commit that appended notifications
	Subscribe() (<-chan struct{}, func())

	// Close stops the writer after the operation in progress completes
	Close() error
}

// Option configures a ledger
type Option func(*ledger)

// WithEntropy overrides the entropy source of notification ids
func WithEntropy(r io.Reader) Option {
	return func(l *ledger) {
		l.entropy = ulid.Monotonic(r, 0)
	}
}

// txFunc is the body of a write operation
type txFunc func(w *writeTx) error

type writeRequest struct {
	ctx       context.Context
	operation string
	fn        txFunc
	queuedAt  time.Time
	done      chan error
}

type ledger struct {
	cfg   Config
	store store.Store
	clock adapter.Clock

	// entropy is only used by the writer goroutine
	entropy io.Reader

	requests  chan *writeRequest
	quit      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	// closedMu guards closed; enqueues hold the read lock so none land after Close drains
	closedMu sync.RWMutex
	closed   bool

	subscribersMu sync.Mutex
	subscribers   map[int]chan struct{}
	nextSubID     int
}

// New creates a ledger over st, bootstraps the administrator if the store has none and starts the writer
func New(ctx context.Context, cfg Config, st store.Store, clock adapter.Clock, opts ...Option) (Ledger, error) {
	if cfg.Name == "" {
		cfg.Name = domain.DEFAULT_REGISTRY_NAME
	}
	if cfg.Symbol == "" {
		cfg.Symbol = domain.DEFAULT_REGISTRY_SYMBOL
	}
	if cfg.Chain == "" {
		cfg.Chain = domain.ChainEthereumMainnet
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	if domain.IsZeroAddress(cfg.RegistryAddress) {
		return nil, fmt.Errorf("%w: registry address is required", domain.ErrInvalidAddress)
	}

	l := &ledger{
		cfg:         cfg,
		store:       st,
		clock:       clock,
		entropy:     ulid.Monotonic(rand.Reader, 0),
		requests:    make(chan *writeRequest, cfg.QueueSize),
		quit:        make(chan struct{}),
		subscribers: make(map[int]chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := l.bootstrapAdmin(ctx); err != nil {
		return nil, err
	}

	l.wg.Add(1)
	go l.run()

	return l, nil
}

// bootstrapAdmin installs the configured administrator on an empty store
func (l *ledger) bootstrapAdmin(ctx context.Context) error {
	return l.store.RunInTransaction(ctx, func(tx store.Tx) error {
		admin, err := tx.GetAdmin()
		if err != nil {
			return err
		}
		if admin != nil {
			if *admin != l.cfg.InitialAdmin && !domain.IsZeroAddress(l.cfg.InitialAdmin) {
				logger.WarnCtx(ctx, "Configured admin differs from stored admin, keeping stored admin",
					zap.String("stored", admin.Hex()),
					zap.String("configured", l.cfg.InitialAdmin.Hex()))
			}
			return nil
		}

		if err := l.validateIdentity(l.cfg.InitialAdmin); err != nil {
			return fmt.Errorf("invalid initial admin: %w", err)
		}
		if err := tx.SetAdmin(l.cfg.InitialAdmin); err != nil {
			return err
		}

		w := l.newWriteTx(ctx, tx)
		to := l.cfg.InitialAdmin
		if err := w.emit(domain.NotificationTypeAdminTransferred, nil, domain.NotificationPayload{To: &to}); err != nil {
			return err
		}

		logger.InfoCtx(ctx, "Bootstrapped registry admin", zap.String("admin", to.Hex()))
		return nil
	})
}

// run is the single writer: requests are executed one at a time in arrival order
func (l *ledger) run() {
	defer l.wg.Done()

	for {
		select {
		case <-l.quit:
			return
		case req := <-l.requests:
			metrics.AddLedgerQueueDepth(-1)
			req.done <- l.execute(req)
		}
	}
}

// submit queues a write and waits for its outcome.
// A request whose context ends before it is accepted never runs.
func (l *ledger) submit(ctx context.Context, operation string, fn txFunc) error {
	req := &writeRequest{
		ctx:       ctx,
		operation: operation,
		fn:        fn,
		queuedAt:  l.clock.Now(),
		done:      make(chan error, 1),
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	l.closedMu.RLock()
	if l.closed {
		l.closedMu.RUnlock()
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		l.closedMu.RUnlock()
		return ctx.Err()
	case l.requests <- req:
		metrics.AddLedgerQueueDepth(1)
	}
	l.closedMu.RUnlock()

	return <-req.done
}

// execute runs one write transaction to completion, regardless of the caller's cancellation
func (l *ledger) execute(req *writeRequest) error {
	ctx := context.WithoutCancel(req.ctx)

	var emitted int
	err := l.store.RunInTransaction(ctx, func(tx store.Tx) error {
		w := l.newWriteTx(ctx, tx)
		if err := req.fn(w); err != nil {
			return err
		}
		emitted = len(w.notifications)
		return nil
	})

	metrics.RecordLedgerOperation(req.operation, resultOf(err), l.clock.Since(req.queuedAt).Seconds())

	if err != nil {
		if !isRejection(err) {
			logger.ErrorCtx(ctx, fmt.Errorf("ledger operation failed: %w", err), zap.String("operation", req.operation))
		}
		return err
	}

	if emitted > 0 {
		l.notifySubscribers()
	}

	return nil
}

// Subscribe returns a commit signal channel and its cancel function
func (l *ledger) Subscribe() (<-chan struct{}, func()) {
	l.subscribersMu.Lock()
	defer l.subscribersMu.Unlock()

	id := l.nextSubID
	l.nextSubID++
	ch := make(chan struct{}, 1)
	l.subscribers[id] = ch

	return ch, func() {
		l.subscribersMu.Lock()
		defer l.subscribersMu.Unlock()
		delete(l.subscribers, id)
	}
}

func (l *ledger) notifySubscribers() {
	l.subscribersMu.Lock()
	defer l.subscribersMu.Unlock()

	for _, ch := range l.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// A signal is already pending
		}
	}
}

// Close stops the writer. Queued but not yet accepted operations return ErrClosed.
func (l *ledger) Close() error {
	l.closeOnce.Do(func() {
		l.closedMu.Lock()
		l.closed = true
		l.closedMu.Unlock()

		close(l.quit)
		l.wg.Wait()

		// Fail requests left in the queue
		for {
			select {
			case req := <-l.requests:
				metrics.AddLedgerQueueDepth(-1)
				req.done <- ErrClosed
			default:
				return
			}
		}
	})
	return nil
}

// now returns the ledger timestamp, truncated to the precision the stores keep
func (l *ledger) now() time.Time {
	return l.clock.Now().UTC().Truncate(time.Microsecond)
}

// view runs fn on a consistent snapshot
func (l *ledger) view(ctx context.Context, fn func(v store.View) error) error {
	return l.store.View(ctx, fn)
}

// validateIdentity rejects the null identity and the registry's own identity
func (l *ledger) validateIdentity(address common.Address) error {
	if domain.IsZeroAddress(address) {
		return fmt.Errorf("%w: null identity", domain.ErrInvalidAddress)
	}
	if address == l.cfg.RegistryAddress {
		return fmt.Errorf("%w: registry identity", domain.ErrInvalidAddress)
	}
	return nil
}

// rejections are the outcomes of validation, as opposed to infrastructure failures
var rejections = []error{
	domain.ErrUnauthorized,
	domain.ErrInvalidAddress,
	domain.ErrTokenNotFound,
	domain.ErrTransferNotFound,
	domain.ErrTransferAlreadyPending,
	domain.ErrNotOwner,
	domain.ErrNotRecipient,
	domain.ErrUnauthorizedCancellation,
	domain.ErrDirectTransferDisabled,
	domain.ErrInvalidSerialHash,
	domain.ErrSerialAlreadySet,
	domain.ErrSerialHashAlreadyExists,
	domain.ErrSerialNotFound,
	domain.ErrAlreadyAuthorized,
	domain.ErrNotAuthorized,
}

func isRejection(err error) bool {
	for _, target := range rejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case isRejection(err):
		return "rejected"
	default:
		return "failed"
	}
}
