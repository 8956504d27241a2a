package gormstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"trendbot/internal/store"
	"trendbot/internal/store/model"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	_ store.Store      = (*GormStore)(nil)
	_ store.UnitOfWork = (*unitOfWork)(nil)
)

// GormStore implements store.Store using Gorm + SQLite.
type GormStore struct {
	repos
}

// NewGormStore opens (or creates) the database at path and migrates the schema.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: db path is required")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	return open(sqlite.Open(dsn))
}

// NewMemoryStore opens a private in-memory database with the same schema.
// It lives until Close; the backtest and tests use it.
func NewMemoryStore() (*GormStore, error) {
	dsn := fmt.Sprintf("file:trendbot-%s?mode=memory&cache=shared", uuid.NewString())
	return open(sqlite.Open(dsn))
}

func open(dialector gorm.Dialector) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&model.PositionModel{},
		&model.TradeModel{},
		&model.DailyPnLModel{},
		&model.SignalModel{},
		&model.ErrorModel{},
		&model.BotStateModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{repos: repos{db: db}}, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Begin starts a transaction; every repository reached through the returned
// unit of work writes inside it.
func (s *GormStore) Begin(ctx context.Context) (store.UnitOfWork, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &unitOfWork{repos: repos{db: tx}}, nil
}

type unitOfWork struct {
	repos
	done bool
}

func (u *unitOfWork) Commit() error {
	if u.done {
		return nil
	}
	u.done = true
	return u.db.Commit().Error
}

func (u *unitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	return u.db.Rollback().Error
}

type repos struct {
	db *gorm.DB
}

func (r repos) Positions() store.PositionRepository { return positionRepo(r) }
func (r repos) Trades() store.TradeRepository       { return tradeRepo(r) }
func (r repos) PnL() store.PnLRepository            { return pnlRepo(r) }
func (r repos) Journal() store.JournalRepository    { return journalRepo(r) }
func (r repos) BotState() store.BotStateRepository  { return botStateRepo(r) }

// --------------------------- Positions ------------------------------

type positionRepo struct{ db *gorm.DB }

func (r positionRepo) Create(ctx context.Context, pos *model.PositionModel) error {
	return r.db.WithContext(ctx).Create(pos).Error
}

func (r positionRepo) Save(ctx context.Context, pos *model.PositionModel) error {
	return r.db.WithContext(ctx).Save(pos).Error
}

func (r positionRepo) Get(ctx context.Context, id string) (*model.PositionModel, error) {
	var m model.PositionModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("position %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r positionRepo) List(ctx context.Context, filter store.PositionFilter) ([]model.PositionModel, error) {
	q := r.db.WithContext(ctx).Model(&model.PositionModel{})
	if filter.Symbol != "" {
		q = q.Where("symbol = ?", filter.Symbol)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Order("entry_time DESC").Limit(filter.Limit)
	} else {
		q = q.Order("entry_time ASC")
	}
	var out []model.PositionModel
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r positionRepo) CountOpen(ctx context.Context) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.PositionModel{}).Where("status = ?", model.PositionOpen).Count(&n).Error
	return int(n), err
}

// --------------------------- Trades ------------------------------

type tradeRepo struct{ db *gorm.DB }

func (r tradeRepo) Create(ctx context.Context, trade *model.TradeModel) error {
	return r.db.WithContext(ctx).Create(trade).Error
}

func (r tradeRepo) ListRecent(ctx context.Context, limit int) ([]model.TradeModel, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []model.TradeModel
	err := r.db.WithContext(ctx).Order("timestamp DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (r tradeRepo) ListByPosition(ctx context.Context, positionID string) ([]model.TradeModel, error) {
	var out []model.TradeModel
	err := r.db.WithContext(ctx).Where("position_id = ?", positionID).Order("timestamp ASC").Find(&out).Error
	return out, err
}

// --------------------------- Daily PnL ------------------------------

type pnlRepo struct{ db *gorm.DB }

func (r pnlRepo) ReplaceAll(ctx context.Context, rows []model.DailyPnLModel) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.DailyPnLModel{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

func (r pnlRepo) List(ctx context.Context) ([]model.DailyPnLModel, error) {
	var out []model.DailyPnLModel
	err := r.db.WithContext(ctx).Order("date ASC").Find(&out).Error
	return out, err
}

// --------------------------- Journal ------------------------------

type journalRepo struct{ db *gorm.DB }

func (r journalRepo) AppendSignal(ctx context.Context, sig *model.SignalModel) error {
	return r.db.WithContext(ctx).Create(sig).Error
}

func (r journalRepo) AppendError(ctx context.Context, rec *model.ErrorModel) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r journalRepo) ListSignals(ctx context.Context, limit int) ([]model.SignalModel, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []model.SignalModel
	err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (r journalRepo) ListErrors(ctx context.Context, limit int) ([]model.ErrorModel, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []model.ErrorModel
	err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// --------------------------- Bot state ------------------------------

type botStateRepo struct{ db *gorm.DB }

func (r botStateRepo) ReplaceAll(ctx context.Context, rows []model.BotStateModel) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.BotStateModel{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

func (r botStateRepo) List(ctx context.Context) ([]model.BotStateModel, error) {
	var out []model.BotStateModel
	err := r.db.WithContext(ctx).Order("symbol ASC").Find(&out).Error
	return out, err
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
