package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"matchbook/domain/orderbook"
)

type Config struct {
	Path        string
	BusyTimeout time.Duration
	MaxRetries  int
	RetryBase   time.Duration
}

// Tx is the set of writes one engine request performs. Every call made
// inside a single InTx commits or rolls back together.
//
// InsertNewOrder records bookSeq as the order's queue position when it
// rests, or 0 when it does not.
type Tx interface {
	InsertNewOrder(o *orderbook.Order, bookSeq uint64) error
	UpdateOrderStatus(id uint64, status orderbook.Status, remaining int64, at time.Time) error
	AddFill(f orderbook.Fill) error
}

type Store struct {
	db  *gorm.DB
	cfg Config
	log *zap.Logger
}

var (
	openStatuses = []int8{
		int8(orderbook.StatusNew),
		int8(orderbook.StatusPartiallyFilled),
	}
	terminalStatuses = []int8{
		int8(orderbook.StatusFilled),
		int8(orderbook.StatusCanceled),
		int8(orderbook.StatusRejected),
	}
)

// Open connects to the SQLite file at cfg.Path, creating it and its
// directory if needed, and migrates the schema.
func Open(cfg Config, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Path == "" {
		return nil, errors.New("storage: path is required")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: create db directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn(cfg)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", cfg.Path, err)
	}

	if err := db.AutoMigrate(&OrderRecord{}, &FillRecord{}); err != nil {
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}

	log.Info("storage opened", zap.String("path", cfg.Path))
	return &Store{db: db, cfg: cfg, log: log}, nil
}

func dsn(cfg Config) string {
	return fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)",
		cfg.Path, cfg.BusyTimeout.Milliseconds(),
	)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// -------------------- Transactions --------------------

// InTx runs fn inside one transaction. fn may run more than once: when the
// transaction fails on lock contention it is rolled back and retried up to
// MaxRetries times with exponential backoff.
func (s *Store) InTx(ctx context.Context, fn func(Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
			return fn(&gormTx{db: db})
		})
		if err == nil {
			return nil
		}
		if !IsBusy(err) || attempt >= s.cfg.MaxRetries {
			return err
		}

		delay := retryDelay(s.cfg.RetryBase, attempt)
		s.log.Warn("sqlite busy, retrying transaction",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("storage: %w (last error: %v)", ctx.Err(), err)
		case <-timer.C:
		}
	}
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) InsertNewOrder(o *orderbook.Order, bookSeq uint64) error {
	rec := newOrderRecord(o, bookSeq)
	if err := t.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("storage: insert order %d: %w", o.ID(), err)
	}
	return nil
}

// UpdateOrderStatus sets status and remaining for id. Writing the same
// terminal status twice succeeds; leaving a terminal state or moving the
// status backwards does not.
func (t *gormTx) UpdateOrderStatus(id uint64, status orderbook.Status, remaining int64, at time.Time) error {
	res := t.db.Model(&OrderRecord{}).
		Where("id = ? AND status <= ? AND (status NOT IN ? OR status = ?)",
			id, int8(status), terminalStatuses, int8(status)).
		Updates(map[string]any{
			"status":             int8(status),
			"remaining_quantity": remaining,
			"updated_ts":         at.UnixMilli(),
		})
	if res.Error != nil {
		return fmt.Errorf("storage: update order %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: order %d to %s", ErrTransitionRefused, id, status)
	}
	return nil
}

func (t *gormTx) AddFill(f orderbook.Fill) error {
	rec := newFillRecord(f)
	if err := t.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("storage: insert fill %d/%d: %w", f.MakerID, f.TakerID, err)
	}
	return nil
}

// -------------------- Queries --------------------

// BestBid is the highest price among open LIMIT buys for symbol.
func (s *Store) BestBid(ctx context.Context, symbol string) (int64, bool, error) {
	return s.bestPrice(ctx, "MAX(price)", symbol, sideBuy)
}

// BestAsk is the lowest price among open LIMIT sells for symbol.
func (s *Store) BestAsk(ctx context.Context, symbol string) (int64, bool, error) {
	return s.bestPrice(ctx, "MIN(price)", symbol, sideSell)
}

func (s *Store) bestPrice(ctx context.Context, agg, symbol string, side int8) (int64, bool, error) {
	var px *int64
	err := s.db.WithContext(ctx).
		Model(&OrderRecord{}).
		Select(agg).
		Where("symbol = ? AND side = ? AND order_type = ? AND status IN ?",
			orderbook.NormalizeSymbol(symbol), side, typeLimit, openStatuses).
		Row().
		Scan(&px)
	if err != nil {
		return 0, false, fmt.Errorf("storage: best price %s: %w", symbol, err)
	}
	if px == nil {
		return 0, false, nil
	}
	return *px, true, nil
}

// LoadNextIDSeed returns the highest persisted order id, 0 for an empty
// database. The next id handed out is seed+1.
func (s *Store) LoadNextIDSeed(ctx context.Context) (uint64, error) {
	var maxID int64
	err := s.db.WithContext(ctx).
		Model(&OrderRecord{}).
		Select("COALESCE(MAX(id), 0)").
		Row().
		Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("storage: load id seed: %w", err)
	}
	return uint64(maxID), nil
}

// OpenOrders returns every LIMIT order still resting, each symbol's rows in
// the order they joined the book.
func (s *Store) OpenOrders(ctx context.Context) ([]OrderRecord, error) {
	var out []OrderRecord
	err := s.db.WithContext(ctx).
		Where("order_type = ? AND status IN ? AND remaining_quantity > 0", typeLimit, openStatuses).
		Order("symbol ASC, book_seq ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("storage: open orders: %w", err)
	}
	return out, nil
}

func (s *Store) GetOrder(ctx context.Context, id uint64) (*OrderRecord, error) {
	var rec OrderRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get order %d: %w", id, err)
	}
	return &rec, nil
}

// Fills returns the fills an order took part in, as maker or taker.
func (s *Store) Fills(ctx context.Context, orderID uint64) ([]FillRecord, error) {
	var out []FillRecord
	err := s.db.WithContext(ctx).
		Where("order_id = ? OR taker_order_id = ?", orderID, orderID).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("storage: fills of %d: %w", orderID, err)
	}
	return out, nil
}
