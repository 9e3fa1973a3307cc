package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uhyunpark/safeswap/params"
	"github.com/uhyunpark/safeswap/pkg/api"
	"github.com/uhyunpark/safeswap/pkg/escrow"
	"github.com/uhyunpark/safeswap/pkg/ledger"
	"github.com/uhyunpark/safeswap/pkg/util"
)

// vaultAddr is the engine's own address on both ledgers. Escrowed value sits
// here between create/commit and cancel/fill.
var vaultAddr = common.HexToAddress("0x00000000000000000000000000000000005AfE01")

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	// Setup logging (write to both console and file)
	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = filepath.Join(cfg.Store.DataDir, "safeswap.log")
	}

	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	// ---- Storage ----
	store, err := escrow.NewStore(filepath.Join(cfg.Store.DataDir, "orders.db"))
	if err != nil {
		sugar.Fatalw("store_open_failed", "err", err)
	}
	defer store.Close()

	reg, err := escrow.NewRegistry(store)
	if err != nil {
		sugar.Fatalw("registry_init_failed", "err", err)
	}

	// ---- Ledgers ----
	// In-process devnet ledgers back the engine's Bank and TokenLedger
	// collaborators. A production deployment swaps in real ledger clients.
	bank := ledger.NewBank()
	tokens := ledger.NewTokenLedger()

	// ---- Engine ----
	cust := escrow.NewCustodian(bank, tokens, vaultAddr)
	engine := escrow.NewEngine(reg, cust, util.RealClock{}, sugar)

	open, err := engine.ListOpenOrders()
	if err != nil {
		sugar.Fatalw("order_scan_failed", "err", err)
	}
	sugar.Infow("engine_started", "vault", vaultAddr.Hex(), "active_orders", len(open))

	// ---- API Server ----
	server := api.NewServer(engine, bank, tokens, cfg)
	engine.SetEmitter(wsEmitter{server})

	go func() {
		if err := server.Start(cfg.API.ListenAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()
	sugar.Infow("api_server_starting", "addr", cfg.API.ListenAddr, "faucet", cfg.Devnet.FaucetEnabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	sugar.Info("shutting_down")
}

// wsEmitter bridges engine notifications to the WebSocket hub
type wsEmitter struct {
	server *api.Server
}

func (e wsEmitter) Emit(ev escrow.Event) {
	e.server.BroadcastEvent(ev)
}
