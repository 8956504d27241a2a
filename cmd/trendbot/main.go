package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"trendbot/internal/app"
	"trendbot/internal/backtest"
	"trendbot/internal/config"
	cfgloader "trendbot/internal/config/loader"
	"trendbot/internal/logger"
	"trendbot/internal/store/candlecache"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	cmd := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath(), "path to config.yaml")
	from := fs.String("from", "", "backtest start date (YYYY-MM-DD, UTC)")
	to := fs.String("to", "", "backtest end date (YYYY-MM-DD, UTC, inclusive)")
	format := fs.String("format", "json", "backtest report format (json or yaml)")
	_ = fs.Parse(args)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("init log file: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetFormat(cfg.App.LogFormat)
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("config loaded (env=%s, mode=%s, watchlist=%s)", cfg.App.Env, cfg.Exchange.Mode, cfg.WatchlistPath)

	switch cmd {
	case "run":
		a, err := app.NewApp(ctx, cfg)
		if err != nil {
			log.Fatalf("init app: %v", err)
		}
		if err := a.Run(ctx); err != nil {
			log.Fatalf("run: %v", err)
		}
	case "backtest":
		if logFile == nil {
			logger.SetOutput(os.Stderr)
		}
		if err := runBacktest(ctx, cfg, *from, *to, *format); err != nil {
			log.Fatalf("backtest: %v", err)
		}
	default:
		log.Fatalf("unknown command %q (want run or backtest)", cmd)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("TRENDBOT_CONFIG"); p != "" {
		return p
	}
	return "configs/config.yaml"
}

// runBacktest replays the candle archive for the active watchlist and prints
// the result as JSON or YAML.
func runBacktest(ctx context.Context, cfg *config.Config, from, to, format string) error {
	if format != "json" && format != "yaml" {
		return fmt.Errorf("unknown -format %q", format)
	}
	start, end, err := parseWindow(from, to)
	if err != nil {
		return err
	}
	wl, err := cfgloader.NewWatchlistLoader(cfg.WatchlistPath)
	if err != nil {
		return err
	}
	entries := wl.Active()
	symbols := make([]string, 0, len(entries))
	for _, e := range entries {
		symbols = append(symbols, e.Symbol)
	}
	cache, err := candlecache.New(cfg.Storage.CandleCacheDir, 0)
	if err != nil {
		return err
	}
	defer cache.Close()
	for _, sym := range symbols {
		if m, err := cache.Manifest(ctx, sym, cfg.Exchange.Interval); err == nil {
			logger.Infof("backtest: %s archive has %d bars (%s .. %s)", sym, m.Rows,
				time.UnixMilli(m.MinTime).UTC().Format(time.DateTime), time.UnixMilli(m.MaxTime).UTC().Format(time.DateTime))
		}
	}
	bars, err := backtest.LoadRange(ctx, cache, symbols, cfg.Exchange.Interval, start, end)
	if err != nil {
		return err
	}
	res, err := backtest.Run(ctx, backtest.ConfigFrom(cfg, entries), bars)
	if err != nil {
		return err
	}
	return writeReport(os.Stdout, res, format)
}

// writeReport emits the result using its json field names for both formats.
func writeReport(w io.Writer, res *backtest.Result, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return fmt.Errorf("convert report: %w", err)
	}
	blockStyle(&node)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

// blockStyle clears the flow and quoting styles inherited from the json input.
// The encoder still quotes strings that would otherwise resolve to another type.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

func parseWindow(from, to string) (int64, int64, error) {
	var start, end int64
	if from != "" {
		t, err := time.Parse(time.DateOnly, from)
		if err != nil {
			return 0, 0, fmt.Errorf("parse -from: %w", err)
		}
		start = t.UnixMilli()
	}
	if to != "" {
		t, err := time.Parse(time.DateOnly, to)
		if err != nil {
			return 0, 0, fmt.Errorf("parse -to: %w", err)
		}
		end = t.Add(24*time.Hour).UnixMilli() - 1
	}
	return start, end, nil
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
