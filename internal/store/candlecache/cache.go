// Package candlecache archives closed bars in one SQLite file per symbol and
// interval so market state can be rebuilt after a restart.
package candlecache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"trendbot/internal/market"

	_ "modernc.org/sqlite"
)

var _ market.KlineStore = (*Cache)(nil)

// Manifest summarises one symbol@interval file.
type Manifest struct {
	Symbol     string `json:"symbol"`
	Interval   string `json:"interval"`
	MinTime    int64  `json:"min_time"`
	MaxTime    int64  `json:"max_time"`
	Rows       int64  `json:"rows"`
	LastSyncAt int64  `json:"last_sync_at"`
	Path       string `json:"path"`
}

type Cache struct {
	root    string
	maxRows int

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// New keeps at most maxRows bars per file; older bars are pruned on Put.
func New(root string, maxRows int) (*Cache, error) {
	if root == "" {
		return nil, fmt.Errorf("candle cache: root dir is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Cache{root: root, maxRows: maxRows, dbs: make(map[string]*sql.DB)}, nil
}

func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for k, db := range c.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.dbs, k)
	}
	return firstErr
}

func (c *Cache) db(symbol, interval string) (*sql.DB, string, error) {
	if symbol == "" || interval == "" {
		return nil, "", fmt.Errorf("candle cache: symbol and interval are required")
	}
	key := strings.ToUpper(symbol) + "@" + strings.ToLower(interval)
	c.mu.Lock()
	defer c.mu.Unlock()
	path := c.dbPath(symbol, interval)
	if db, ok := c.dbs[key]; ok {
		return db, path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, "", err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db, symbol, interval); err != nil {
		_ = db.Close()
		return nil, "", err
	}
	c.dbs[key] = db
	return db, path, nil
}

func (c *Cache) dbPath(symbol, interval string) string {
	dir := filepath.Join(c.root, strings.ToUpper(symbol))
	return filepath.Join(dir, strings.ToLower(interval)+".db")
}

// Put upserts bars by open time, then prunes beyond maxRows.
func (c *Cache) Put(ctx context.Context, symbol, interval string, candles []market.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	db, _, err := c.db(symbol, interval)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (open_time, close_time, open, high, low, close, volume, trades)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(open_time) DO UPDATE SET
		    close_time=excluded.close_time,
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close,
		    volume=excluded.volume,
		    trades=excluded.trades`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, k := range candles {
		if _, err := stmt.ExecContext(ctx, k.OpenTime, k.CloseTime, k.Open, k.High, k.Low, k.Close, k.Volume, k.Trades); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if c.maxRows > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM candles WHERE open_time NOT IN (
				SELECT open_time FROM candles ORDER BY open_time DESC LIMIT ?)`, c.maxRows); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return refreshManifest(ctx, db)
}

// Load returns the most recent limit bars, oldest first.
func (c *Cache) Load(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	db, _, err := c.db(symbol, interval)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx, `
		SELECT open_time, close_time, open, high, low, close, volume, trades
		FROM candles ORDER BY open_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []market.Candle
	for rows.Next() {
		var k market.Candle
		if err := rows.Scan(&k.OpenTime, &k.CloseTime, &k.Open, &k.High, &k.Low, &k.Close, &k.Volume, &k.Trades); err != nil {
			return nil, err
		}
		list = append(list, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

// Range returns bars with open time in [start, end], oldest first.
func (c *Cache) Range(ctx context.Context, symbol, interval string, start, end int64) ([]market.Candle, error) {
	db, _, err := c.db(symbol, interval)
	if err != nil {
		return nil, err
	}
	if end > 0 && end < start {
		start, end = end, start
	}
	if end <= 0 {
		end = 1<<63 - 1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT open_time, close_time, open, high, low, close, volume, trades
		FROM candles WHERE open_time BETWEEN ? AND ? ORDER BY open_time ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []market.Candle
	for rows.Next() {
		var k market.Candle
		if err := rows.Scan(&k.OpenTime, &k.CloseTime, &k.Open, &k.High, &k.Low, &k.Close, &k.Volume, &k.Trades); err != nil {
			return nil, err
		}
		list = append(list, k)
	}
	return list, rows.Err()
}

func (c *Cache) Manifest(ctx context.Context, symbol, interval string) (Manifest, error) {
	db, path, err := c.db(symbol, interval)
	if err != nil {
		return Manifest{}, err
	}
	row := db.QueryRowContext(ctx, `SELECT symbol, interval, COALESCE(min_time,0), COALESCE(max_time,0), rows, COALESCE(last_sync_at,0) FROM manifest WHERE id=1`)
	var m Manifest
	if err := row.Scan(&m.Symbol, &m.Interval, &m.MinTime, &m.MaxTime, &m.Rows, &m.LastSyncAt); err != nil {
		return Manifest{}, err
	}
	m.Path = path
	return m, nil
}

func refreshManifest(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		UPDATE manifest
		SET min_time = (SELECT COALESCE(MIN(open_time), 0) FROM candles),
		    max_time = (SELECT COALESCE(MAX(open_time), 0) FROM candles),
		    rows = (SELECT COUNT(1) FROM candles),
		    last_sync_at = ?
		WHERE id = 1`, time.Now().UnixMilli())
	return err
}

func ensureSchema(db *sql.DB, symbol, interval string) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			open_time  INTEGER PRIMARY KEY,
			close_time INTEGER NOT NULL,
			open       REAL NOT NULL,
			high       REAL NOT NULL,
			low        REAL NOT NULL,
			close      REAL NOT NULL,
			volume     REAL NOT NULL,
			trades     INTEGER DEFAULT 0,
			inserted_at INTEGER NOT NULL DEFAULT (strftime('%s','now') * 1000)
		);`,
		`CREATE TABLE IF NOT EXISTS manifest (
			id INTEGER PRIMARY KEY CHECK (id=1),
			symbol TEXT NOT NULL,
			interval TEXT NOT NULL,
			min_time INTEGER,
			max_time INTEGER,
			rows INTEGER DEFAULT 0,
			last_sync_at INTEGER
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	_, err := db.Exec(`INSERT INTO manifest (id, symbol, interval) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET symbol=excluded.symbol, interval=excluded.interval;`,
		strings.ToUpper(symbol), strings.ToLower(interval))
	return err
}
