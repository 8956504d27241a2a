package symbol

import "strings"

// BinanceConverter maps BTC/USDT to the futures symbol BTCUSDT.
type BinanceConverter struct{}

func (BinanceConverter) Format() Format { return FormatBinance }

func (BinanceConverter) ToExchange(internal string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(internal)), "/", "")
}

func (BinanceConverter) FromExchange(raw string) string { return Parse(raw).Internal() }

// GateConverter maps BTC/USDT to the futures contract BTC_USDT.
type GateConverter struct{}

func (GateConverter) Format() Format { return FormatGate }

func (GateConverter) ToExchange(internal string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(internal)), "/", "_")
}

func (GateConverter) FromExchange(raw string) string { return Parse(raw).Internal() }

var (
	Binance Converter = BinanceConverter{}
	Gate    Converter = GateConverter{}
)
