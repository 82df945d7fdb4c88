// Command server runs the limit order book engine behind its TCP order
// entry socket and HTTP admin listener.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/rishav/order-book/internal/clearing"
	"github.com/rishav/order-book/internal/marketdata"
	"github.com/rishav/order-book/internal/matching"
	"github.com/rishav/order-book/internal/risk"
	"github.com/rishav/order-book/internal/server"
)

// Config holds the full server configuration.
type Config struct {
	Listen           string `json:"listen"`
	AdminListen      string `json:"admin_listen"`
	JournalPath      string `json:"journal_path"`
	JournalSync      bool   `json:"journal_sync"`
	TombstoneCap     int    `json:"tombstone_cap"`
	MaxOrderQty      uint32 `json:"max_order_qty"`
	MaxOrderNotional uint64 `json:"max_order_notional"`
	LogLevel         string `json:"log_level"`
	LogFormat        string `json:"log_format"` // "console" or "json"
}

// DefaultConfig returns reasonable defaults.
func DefaultConfig() Config {
	return Config{
		Listen:      "127.0.0.1:8080",
		AdminListen: "127.0.0.1:9100",
		LogLevel:    "info",
		LogFormat:   "console",
	}
}

// LoadConfig loads configuration from a JSON file, falling back to
// defaults when path is empty or the file does not exist.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return config, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

func main() {
	configPath := flag.String("config", "", "Path to JSON config file")
	listen := flag.String("listen", "", "Order entry listen address")
	adminListen := flag.String("admin-listen", "", "Admin HTTP listen address (empty in config disables)")
	journalPath := flag.String("journal", "", "Fill journal path (empty disables)")
	journalSync := flag.Bool("journal-sync", false, "fsync the fill journal on every append")
	tombstoneCap := flag.Int("tombstone-cap", 0, "Tombstone retention bound (0 = default)")
	maxOrderQty := flag.Uint("max-order-qty", 0, "Pre-trade cap on order quantity (0 disables)")
	maxOrderNotional := flag.Uint64("max-order-notional", 0, "Pre-trade cap on order notional (0 disables)")
	logLevel := flag.String("log-level", "", "Log level (trace/debug/info/warn/error)")
	logFormat := flag.String("log-format", "", "Log format (console/json)")
	flag.Parse()

	config, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *listen != "" {
		config.Listen = *listen
	}
	if *adminListen != "" {
		config.AdminListen = *adminListen
	}
	if *journalPath != "" {
		config.JournalPath = *journalPath
	}
	if *journalSync {
		config.JournalSync = true
	}
	if *tombstoneCap > 0 {
		config.TombstoneCap = *tombstoneCap
	}
	if *maxOrderQty > 0 {
		config.MaxOrderQty = uint32(*maxOrderQty)
	}
	if *maxOrderNotional > 0 {
		config.MaxOrderNotional = *maxOrderNotional
	}
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}
	if *logFormat != "" {
		config.LogFormat = *logFormat
	}

	log := newLogger(config)

	// Fill sinks: the clearing tally always runs; the structured fill log
	// and the durable journal are fan-out legs behind it. The journal does
	// disk I/O, so it sits behind a drop-on-full buffer instead of running
	// inside the engine's write lock.
	house := clearing.NewHouse()
	reporters := clearing.Multi{house, clearing.NewLogReporter(log)}

	var buffered *clearing.Buffered
	var journal *clearing.Journal
	if config.JournalPath != "" {
		journal, err = clearing.NewJournal(clearing.JournalConfig{
			Path:     config.JournalPath,
			SyncMode: config.JournalSync,
			Logger:   log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open fill journal")
		}
		buffered = clearing.NewBuffered(journal, 8192)
		reporters = append(reporters, buffered)
		log.Info().Str("path", config.JournalPath).Bool("sync", config.JournalSync).Uint64("last_seq", journal.LastSeq()).Msg("fill journal open")
	}

	engine := matching.NewEngine(matching.Config{
		TombstoneCap: config.TombstoneCap,
		Reporter:     reporters,
		Logger:       log,
	})
	publisher := marketdata.NewPublisher(1000)

	srv := server.New(server.Config{
		Listen:      config.Listen,
		AdminListen: config.AdminListen,
		Risk: risk.Config{
			MaxOrderQty:      config.MaxOrderQty,
			MaxOrderNotional: config.MaxOrderNotional,
		},
	}, engine, publisher, house, log)

	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	statsTicker := time.NewTicker(30 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("shutting down")
			shutdown(srv, publisher, buffered, journal, log)
			return
		case <-statsTicker.C:
			stats := engine.Stats()
			log.Info().
				Int("resting_orders", stats.RestingOrders).
				Int("bid_levels", stats.BidLevels).
				Int("ask_levels", stats.AskLevels).
				Uint64("fills", stats.Fills).
				Msg("engine stats")
		}
	}
}

// shutdown order matters: stop the network edge first so no new fills are
// generated, then flush the fill pipeline, then release the feed.
func shutdown(srv *server.Server, publisher *marketdata.Publisher, buffered *clearing.Buffered, journal *clearing.Journal, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	if buffered != nil {
		buffered.Close()
		if dropped := buffered.Dropped(); dropped > 0 {
			log.Warn().Uint64("dropped", dropped).Msg("fills dropped by journal buffer")
		}
	}
	if journal != nil {
		if err := journal.Close(); err != nil {
			log.Error().Err(err).Msg("journal close error")
		}
	}
	publisher.Close()
}

func newLogger(config Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if config.LogFormat == "json" {
		log = zerolog.New(os.Stderr)
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return log.Level(level).With().Timestamp().Logger()
}
