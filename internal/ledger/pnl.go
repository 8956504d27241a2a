package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"trendbot/internal/store/model"
)

var (
	bpsDivisor = decimal.NewFromInt(10_000)
	hundred    = decimal.NewFromInt(100)
	two        = decimal.NewFromInt(2)
)

// Costs are the fee and slippage charged on one fill.
type Costs struct {
	Notional float64
	Fee      float64
	Slippage float64
}

// FillCosts prices a fill of qty at price with basis-point fee and slippage rates.
func FillCosts(qty, price, feeBps, slippageBps float64) Costs {
	notional := decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(price))
	fee := notional.Mul(decimal.NewFromFloat(feeBps)).Div(bpsDivisor)
	slip := notional.Mul(decimal.NewFromFloat(slippageBps)).Div(bpsDivisor)
	return Costs{
		Notional: notional.InexactFloat64(),
		Fee:      fee.InexactFloat64(),
		Slippage: slip.InexactFloat64(),
	}
}

// ExitFill describes the closing fill of a position.
type ExitFill struct {
	Price    float64
	Fee      float64
	Slippage float64
	Time     time.Time
	Reason   string
	OrderID  string
}

// Realize returns pos closed by fill. Exit costs are added to the running
// totals before net PnL is taken.
func Realize(pos model.PositionModel, fill ExitFill) model.PositionModel {
	qty := decimal.NewFromFloat(pos.Qty)
	entry := decimal.NewFromFloat(pos.EntryPrice)
	exit := decimal.NewFromFloat(fill.Price)

	fees := decimal.NewFromFloat(pos.FeesTotal).Add(decimal.NewFromFloat(fill.Fee))
	slip := decimal.NewFromFloat(pos.SlippageTotal).Add(decimal.NewFromFloat(fill.Slippage))

	var gross decimal.Decimal
	if pos.Side == model.SideShort {
		gross = entry.Sub(exit).Mul(qty)
	} else {
		gross = exit.Sub(entry).Mul(qty)
	}
	net := gross.Sub(fees).Sub(slip)

	entryNotional := decimal.NewFromFloat(pos.EntryNotional)
	if entryNotional.IsZero() {
		entryNotional = entry.Mul(qty)
	}
	exitNotional := exit.Mul(qty)

	out := pos
	out.Status = model.PositionClosed
	out.ExitPrice = fill.Price
	out.ExitTime = fill.Time.UnixMilli()
	out.ExitReason = fill.Reason
	out.ExitOrderID = fill.OrderID
	out.ExitNotional = exitNotional.InexactFloat64()
	out.FeesTotal = fees.InexactFloat64()
	out.SlippageTotal = slip.InexactFloat64()
	out.GrossPnL = gross.InexactFloat64()
	out.NetPnL = net.InexactFloat64()
	out.AvgNotional = entryNotional.Add(exitNotional).Div(two).InexactFloat64()
	if entryNotional.IsPositive() {
		out.ReturnPct = gross.Div(entryNotional).Mul(hundred).InexactFloat64()
		out.NetReturnPct = net.Div(entryNotional).Mul(hundred).InexactFloat64()
	} else {
		out.ReturnPct, out.NetReturnPct = 0, 0
	}
	out.UpdatedAt = fill.Time.UnixMilli()
	return out
}

// Unrealized is the mark-to-market gross PnL of an open position.
func Unrealized(pos model.PositionModel, mark float64) float64 {
	diff := decimal.NewFromFloat(mark).Sub(decimal.NewFromFloat(pos.EntryPrice))
	if pos.Side == model.SideShort {
		diff = diff.Neg()
	}
	return diff.Mul(decimal.NewFromFloat(pos.Qty)).InexactFloat64()
}

type bucket struct {
	row      model.DailyPnLModel
	gross    decimal.Decimal
	net      decimal.Decimal
	fees     decimal.Decimal
	slip     decimal.Decimal
	entryNot decimal.Decimal
	exitNot  decimal.Decimal
	winSum   decimal.Decimal
	lossSum  decimal.Decimal
}

// BucketDaily aggregates every closed position by the UTC date of its exit.
// Rows come back sorted by date. The result depends only on closed, so
// calling it twice over the same set yields identical rows apart from
// UpdatedAt.
func BucketDaily(closed []model.PositionModel, now time.Time) []model.DailyPnLModel {
	buckets := make(map[string]*bucket)
	for _, pos := range closed {
		if pos.Status != model.PositionClosed || pos.ExitTime == 0 {
			continue
		}
		date := time.UnixMilli(pos.ExitTime).UTC().Format("2006-01-02")
		b, ok := buckets[date]
		if !ok {
			b = &bucket{row: model.DailyPnLModel{Date: date}}
			buckets[date] = b
		}
		net := decimal.NewFromFloat(pos.NetPnL)
		b.gross = b.gross.Add(decimal.NewFromFloat(pos.GrossPnL))
		b.net = b.net.Add(net)
		b.fees = b.fees.Add(decimal.NewFromFloat(pos.FeesTotal))
		b.slip = b.slip.Add(decimal.NewFromFloat(pos.SlippageTotal))
		b.entryNot = b.entryNot.Add(decimal.NewFromFloat(pos.EntryNotional))
		b.exitNot = b.exitNot.Add(decimal.NewFromFloat(pos.ExitNotional))
		b.row.Trades++
		if !net.IsNegative() {
			b.row.Wins++
			b.winSum = b.winSum.Add(net)
		} else {
			b.row.Losses++
			b.lossSum = b.lossSum.Add(net.Abs())
		}
	}

	out := make([]model.DailyPnLModel, 0, len(buckets))
	for _, b := range buckets {
		row := b.row
		row.GrossPnL = b.gross.InexactFloat64()
		row.NetPnL = b.net.InexactFloat64()
		row.Fees = b.fees.InexactFloat64()
		row.Slippage = b.slip.InexactFloat64()
		row.EntryVolume = b.entryNot.InexactFloat64()
		row.ExitVolume = b.exitNot.InexactFloat64()
		if row.Wins > 0 {
			row.AvgWin = b.winSum.Div(decimal.NewFromInt(int64(row.Wins))).InexactFloat64()
		}
		if row.Losses > 0 {
			row.AvgLoss = b.lossSum.Div(decimal.NewFromInt(int64(row.Losses))).InexactFloat64()
		}
		switch {
		case row.Losses > 0 && b.lossSum.IsPositive():
			row.ProfitFactor = model.Ratio(b.winSum.Div(b.lossSum).InexactFloat64())
		case row.Wins > 0:
			row.ProfitFactor = model.Inf()
		default:
			row.ProfitFactor = 0
		}
		row.WinRate = decimal.NewFromInt(int64(row.Wins)).
			Div(decimal.NewFromInt(int64(row.Trades))).
			Mul(hundred).InexactFloat64()
		row.UpdatedAt = now.UnixMilli()
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// LossSince sums the absolute net loss of positions closed at or after
// since and reports the latest losing exit.
func LossSince(closed []model.PositionModel, since time.Time) (float64, time.Time) {
	total := decimal.Zero
	var last time.Time
	cutoff := since.UnixMilli()
	for _, pos := range closed {
		if pos.Status != model.PositionClosed || pos.ExitTime < cutoff || pos.NetPnL >= 0 {
			continue
		}
		total = total.Add(decimal.NewFromFloat(pos.NetPnL).Abs())
		if at := time.UnixMilli(pos.ExitTime); at.After(last) {
			last = at
		}
	}
	return total.InexactFloat64(), last
}
