package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"royaltysplit/config"
	"royaltysplit/core/events"
	"royaltysplit/core/types"
	"royaltysplit/native/royalty"
	"royaltysplit/observability/logging"
	"royaltysplit/payout"
	"royaltysplit/rpc"
	"royaltysplit/state"
	"royaltysplit/storage"
)

// eventLogger forwards vault receipts to the structured log; realtime
// consumers subscribe to the websocket stream instead.
type eventLogger struct {
	logger *slog.Logger
}

func (l eventLogger) Emit(evt events.Event) {
	attrs := []any{slog.String("event", evt.EventType())}
	if payload, ok := evt.(interface{ Event() *types.Event }); ok {
		for key, value := range payload.Event().Attributes {
			attrs = append(attrs, slog.String(key, value))
		}
	}
	l.logger.Info("vault receipt", attrs...)
}

// multiEmitter fans each receipt out to every configured emitter.
type multiEmitter []events.Emitter

func (m multiEmitter) Emit(evt events.Event) {
	for _, emitter := range m {
		emitter.Emit(evt)
	}
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("ROYALTYD_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("royaltyd", env, logging.Options{
		FilePath:   cfg.LogFile,
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 30,
	})

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "vault"))
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	store := state.NewStore(db)
	bootstrapped, err := store.Bootstrapped()
	if err != nil {
		logger.Error("Failed to probe vault state", slog.Any("error", err))
		os.Exit(1)
	}
	if !bootstrapped {
		hash, err := cfg.InitialConfigHash()
		if err != nil {
			logger.Error("Invalid initial config hash", slog.Any("error", err))
			os.Exit(1)
		}
		if err := store.Bootstrap(cfg.OwnerAddress(), cfg.Vault.CommissionRateBps, hash); err != nil {
			logger.Error("Failed to bootstrap vault", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("bootstrapped vault ledger",
			slog.String("owner", cfg.Vault.Owner),
			slog.Any("commissionRateBps", cfg.Vault.CommissionRateBps))
	}

	// Actual value delivery is an external concern; the daemon records the
	// intent and leaves settlement to the downstream transport.
	sender := payout.SenderFunc(func(recipient [20]byte, amount *big.Int) error {
		logger.Info("outbound transfer scheduled",
			slog.String("recipient", common.Address(recipient).Hex()),
			slog.String("amount", amount.String()))
		return nil
	})
	dispatcher := payout.NewDispatcher(db, sender, logger, cfg.PayoutQueueSize)
	defer dispatcher.Close()

	stream := events.NewStreamEmitter()

	engine := royalty.NewEngine()
	engine.SetState(store)
	engine.SetSink(dispatcher)
	engine.SetEmitter(multiEmitter{eventLogger{logger: logger}, stream})

	server := rpc.NewServer(engine, dispatcher, stream, logger, cfg.RPCRatePerSecond)
	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting JSON-RPC server", slog.String("addr", cfg.RPCAddress))
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("HTTP shutdown failed", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("JSON-RPC server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
