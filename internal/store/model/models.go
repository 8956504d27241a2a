package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gorm.io/datatypes"
)

type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Opposite returns the closing side.
func (s Side) Opposite() Side {
	if s == SideShort {
		return SideLong
	}
	return SideShort
}

type TradeAction string

const (
	TradeEnter TradeAction = "ENTER"
	TradeExit  TradeAction = "EXIT"
)

// PositionModel is one lifecycle from entry to exit. Open positions carry
// zero exit fields. Timestamps are unix milliseconds.
type PositionModel struct {
	ID            string         `gorm:"column:id;primaryKey" json:"id"`
	Symbol        string         `gorm:"column:symbol;index" json:"symbol"`
	Side          Side           `gorm:"column:side" json:"side"`
	Strategy      string         `gorm:"column:strategy" json:"strategy"`
	Status        PositionStatus `gorm:"column:status;index" json:"status"`
	Qty           float64        `gorm:"column:qty" json:"qty"`
	Leverage      float64        `gorm:"column:leverage" json:"leverage"`
	EntryPrice    float64        `gorm:"column:entry_price" json:"entry_price"`
	EntryTime     int64          `gorm:"column:entry_time" json:"entry_time"`
	EntryNotional float64        `gorm:"column:entry_notional" json:"entry_notional"`
	EntryOrderID  string         `gorm:"column:entry_order_id" json:"entry_order_id"`
	TrailingMode  string         `gorm:"column:trailing_mode" json:"trailing_mode"`
	TrailingStop  *float64       `gorm:"column:trailing_stop" json:"trailing_stop,omitempty"`
	StopLoss      *float64       `gorm:"column:stop_loss" json:"stop_loss,omitempty"`
	FeesTotal     float64        `gorm:"column:fees_total" json:"fees_total"`
	SlippageTotal float64        `gorm:"column:slippage_total" json:"slippage_total"`
	ExitPrice     float64        `gorm:"column:exit_price" json:"exit_price,omitempty"`
	ExitTime      int64          `gorm:"column:exit_time;index" json:"exit_time,omitempty"`
	ExitNotional  float64        `gorm:"column:exit_notional" json:"exit_notional,omitempty"`
	ExitReason    string         `gorm:"column:exit_reason" json:"exit_reason,omitempty"`
	ExitOrderID   string         `gorm:"column:exit_order_id" json:"exit_order_id,omitempty"`
	GrossPnL      float64        `gorm:"column:gross_pnl" json:"gross_pnl"`
	NetPnL        float64        `gorm:"column:net_pnl" json:"net_pnl"`
	ReturnPct     float64        `gorm:"column:return_pct" json:"return_pct"`
	NetReturnPct  float64        `gorm:"column:net_return_pct" json:"net_return_pct"`
	AvgNotional   float64        `gorm:"column:avg_notional" json:"avg_notional"`
	CreatedAt     int64          `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     int64          `gorm:"column:updated_at" json:"updated_at"`
}

func (PositionModel) TableName() string { return "positions" }

// Open reports whether the position still awaits an exit.
func (p PositionModel) Open() bool { return p.Status == PositionOpen }

// TradeModel is a single fill, either opening or closing a position.
type TradeModel struct {
	ID         string      `gorm:"column:id;primaryKey" json:"id"`
	PositionID string      `gorm:"column:position_id;index" json:"position_id"`
	Exchange   string      `gorm:"column:exchange" json:"exchange"`
	Symbol     string      `gorm:"column:symbol;index" json:"symbol"`
	Side       Side        `gorm:"column:side" json:"side"`
	Action     TradeAction `gorm:"column:action" json:"action"`
	Qty        float64     `gorm:"column:qty" json:"qty"`
	Price      float64     `gorm:"column:price" json:"price"`
	Notional   float64     `gorm:"column:notional" json:"notional"`
	Fee        float64     `gorm:"column:fee" json:"fee"`
	Slippage   float64     `gorm:"column:slippage" json:"slippage"`
	Strategy   string      `gorm:"column:strategy" json:"strategy"`
	Reason     string      `gorm:"column:reason" json:"reason,omitempty"`
	OrderID    string      `gorm:"column:order_id" json:"order_id"`
	ClientID   string      `gorm:"column:client_id" json:"client_id,omitempty"`
	Timestamp  int64       `gorm:"column:timestamp;index" json:"timestamp"`
}

func (TradeModel) TableName() string { return "trades" }

// DailyPnLModel aggregates closed positions by UTC exit date.
type DailyPnLModel struct {
	Date         string  `gorm:"column:date;primaryKey" json:"date"`
	Trades       int     `gorm:"column:trades" json:"trades"`
	Wins         int     `gorm:"column:wins" json:"wins"`
	Losses       int     `gorm:"column:losses" json:"losses"`
	GrossPnL     float64 `gorm:"column:gross_pnl" json:"gross_pnl"`
	NetPnL       float64 `gorm:"column:net_pnl" json:"net_pnl"`
	Fees         float64 `gorm:"column:fees" json:"fees"`
	Slippage     float64 `gorm:"column:slippage" json:"slippage"`
	EntryVolume  float64 `gorm:"column:entry_notional" json:"entry_notional"`
	ExitVolume   float64 `gorm:"column:exit_notional" json:"exit_notional"`
	AvgWin       float64 `gorm:"column:avg_win" json:"avg_win"`
	AvgLoss      float64 `gorm:"column:avg_loss" json:"avg_loss"`
	WinRate      float64 `gorm:"column:win_rate" json:"win_rate"`
	ProfitFactor Ratio   `gorm:"column:profit_factor;type:TEXT" json:"profit_factor"`
	UpdatedAt    int64   `gorm:"column:updated_at" json:"updated_at"`
}

func (DailyPnLModel) TableName() string { return "daily_pnl" }

// SignalModel journals every entry signal and exit with the indicator
// values seen at the time.
type SignalModel struct {
	ID         int64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Timestamp  int64          `gorm:"column:timestamp;index" json:"timestamp"`
	Symbol     string         `gorm:"column:symbol;index" json:"symbol"`
	Strategy   string         `gorm:"column:strategy" json:"strategy"`
	Signal     string         `gorm:"column:signal" json:"signal"`
	Price      float64        `gorm:"column:price" json:"price"`
	Reason     string         `gorm:"column:reason" json:"reason,omitempty"`
	Indicators datatypes.JSON `gorm:"column:indicators;type:TEXT" json:"indicators"`
}

func (SignalModel) TableName() string { return "signals" }

// ErrorModel records a per-symbol failure that did not abort the process.
type ErrorModel struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Timestamp int64  `gorm:"column:timestamp;index" json:"timestamp"`
	Module    string `gorm:"column:module" json:"module"`
	Symbol    string `gorm:"column:symbol" json:"symbol,omitempty"`
	Kind      string `gorm:"column:kind" json:"kind"`
	Message   string `gorm:"column:message" json:"message"`
}

func (ErrorModel) TableName() string { return "errors" }

// BotStateModel persists the breakout machine per symbol. BarsElapsed is
// relative so it survives a restart that resets bar numbering.
type BotStateModel struct {
	Symbol        string  `gorm:"column:symbol;primaryKey" json:"symbol"`
	Phase         string  `gorm:"column:phase" json:"phase"`
	Level         float64 `gorm:"column:level" json:"level"`
	BarsElapsed   int64   `gorm:"column:bars_elapsed" json:"bars_elapsed"`
	LastCloseTime int64   `gorm:"column:last_close_time" json:"last_close_time"`
	UpdatedAt     int64   `gorm:"column:updated_at" json:"updated_at"`
}

func (BotStateModel) TableName() string { return "bot_state" }

// Ratio is a float that may be +Inf. It is stored as text and rendered in
// JSON as the string "inf" when infinite.
type Ratio float64

// Inf is the ratio reported when there are gains and no losses.
func Inf() Ratio { return Ratio(math.Inf(1)) }

func (r Ratio) IsInf() bool { return math.IsInf(float64(r), 1) }

func (r Ratio) String() string {
	if r.IsInf() {
		return "inf"
	}
	return strconv.FormatFloat(float64(r), 'f', -1, 64)
}

func (r Ratio) MarshalJSON() ([]byte, error) {
	if r.IsInf() {
		return []byte(`"inf"`), nil
	}
	return json.Marshal(float64(r))
}

func (r *Ratio) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return r.parse(s)
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}

func (r Ratio) Value() (driver.Value, error) { return r.String(), nil }

func (r *Ratio) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*r = 0
		return nil
	case float64:
		*r = Ratio(v)
		return nil
	case int64:
		*r = Ratio(v)
		return nil
	case []byte:
		return r.parse(string(v))
	case string:
		return r.parse(v)
	}
	return fmt.Errorf("ratio: unsupported scan type %T", src)
}

func (r *Ratio) parse(s string) error {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "inf", "+inf", "infinity":
		*r = Inf()
		return nil
	case "":
		*r = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("ratio %q: %w", s, err)
	}
	*r = Ratio(f)
	return nil
}
