package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/openperp/margind/params"
	"github.com/openperp/margind/pkg/api"
	"github.com/openperp/margind/pkg/engine"
	"github.com/openperp/margind/pkg/store"
	"github.com/openperp/margind/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	// ---- Engine state ----
	market, err := engine.NewMarket(cfg.Market.Symbol, cfg.Market.Leverage)
	if err != nil {
		sugar.Fatalw("market_init_failed", "err", err)
	}
	pool := engine.NewLiquidityPool()
	feed := engine.NewPriceFeed()
	eng := engine.NewEngine(market, pool, feed)
	eng.Logger = sugar

	// ---- Persistence ----
	st, err := store.NewStore(cfg.Node.DBPath, cfg.Market.Symbol)
	if err != nil {
		sugar.Fatalw("store_init_failed", "path", cfg.Node.DBPath, "err", err)
	}
	defer st.Close()

	snap, err := st.LoadSnapshot()
	if err != nil {
		sugar.Fatalw("snapshot_load_failed", "err", err)
	}
	eng.Restore(snap)
	eng.Store = st
	sugar.Infow("state_restored",
		"symbol", cfg.Market.Symbol,
		"pool_balance", snap.PoolBalance,
		"positions", len(snap.Positions),
		"price", snap.Price)

	// ---- API ----
	server := api.NewServer(eng, util.RealClock{})
	eng.Sink = server.Hub()

	go func() {
		if err := server.Start(cfg.Node.APIAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()
	sugar.Infow("margind_started", "symbol", cfg.Market.Symbol, "leverage", cfg.Market.Leverage, "api", cfg.Node.APIAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	sugar.Info("shutting down")
}
