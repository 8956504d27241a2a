package store

import (
	"context"
	"errors"

	"trendbot/internal/store/model"
)

// ErrNotFound is returned by single-row lookups.
var ErrNotFound = errors.New("store: not found")

// Repositories groups every table accessor. Both the Store and an open
// UnitOfWork expose them.
type Repositories interface {
	Positions() PositionRepository
	Trades() TradeRepository
	PnL() PnLRepository
	Journal() JournalRepository
	BotState() BotStateRepository
}

// UnitOfWork defines a transaction scope.
type UnitOfWork interface {
	Repositories
	// Commit commits the transaction.
	Commit() error
	// Rollback rolls back the transaction. It is a no-op after Commit.
	Rollback() error
}

// Store is the entry point for database access.
type Store interface {
	Repositories
	// Begin starts a new UnitOfWork (transaction).
	Begin(ctx context.Context) (UnitOfWork, error)
	// Close closes the store connection.
	Close() error
}

// PositionFilter narrows List; zero values match everything.
type PositionFilter struct {
	Symbol string
	Status model.PositionStatus
	Limit  int
}

// PositionRepository handles position persistence.
type PositionRepository interface {
	Create(ctx context.Context, pos *model.PositionModel) error
	Save(ctx context.Context, pos *model.PositionModel) error
	Get(ctx context.Context, id string) (*model.PositionModel, error)
	List(ctx context.Context, filter PositionFilter) ([]model.PositionModel, error)
	CountOpen(ctx context.Context) (int, error)
}

// TradeRepository handles fill persistence.
type TradeRepository interface {
	Create(ctx context.Context, trade *model.TradeModel) error
	ListRecent(ctx context.Context, limit int) ([]model.TradeModel, error)
	ListByPosition(ctx context.Context, positionID string) ([]model.TradeModel, error)
}

// PnLRepository stores the daily buckets. ReplaceAll swaps the whole table.
type PnLRepository interface {
	ReplaceAll(ctx context.Context, rows []model.DailyPnLModel) error
	List(ctx context.Context) ([]model.DailyPnLModel, error)
}

// JournalRepository is append-only.
type JournalRepository interface {
	AppendSignal(ctx context.Context, sig *model.SignalModel) error
	AppendError(ctx context.Context, rec *model.ErrorModel) error
	ListSignals(ctx context.Context, limit int) ([]model.SignalModel, error)
	ListErrors(ctx context.Context, limit int) ([]model.ErrorModel, error)
}

// BotStateRepository persists the breakout machine per symbol.
type BotStateRepository interface {
	ReplaceAll(ctx context.Context, rows []model.BotStateModel) error
	List(ctx context.Context) ([]model.BotStateModel, error)
}
