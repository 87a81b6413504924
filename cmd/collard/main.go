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
	"sort"
	"syscall"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/CollarNetworks/protocol-core-sub005/config"
	"github.com/CollarNetworks/protocol-core-sub005/core/events"
	"github.com/CollarNetworks/protocol-core-sub005/core/node"
	"github.com/CollarNetworks/protocol-core-sub005/core/state"
	coretypes "github.com/CollarNetworks/protocol-core-sub005/core/types"
	"github.com/CollarNetworks/protocol-core-sub005/native/escrow"
	"github.com/CollarNetworks/protocol-core-sub005/native/loans"
	"github.com/CollarNetworks/protocol-core-sub005/native/pricing"
	"github.com/CollarNetworks/protocol-core-sub005/native/provider"
	"github.com/CollarNetworks/protocol-core-sub005/native/rolls"
	"github.com/CollarNetworks/protocol-core-sub005/native/swap"
	"github.com/CollarNetworks/protocol-core-sub005/native/taker"
	"github.com/CollarNetworks/protocol-core-sub005/observability/logging"
	"github.com/CollarNetworks/protocol-core-sub005/observability/metrics"
	"github.com/CollarNetworks/protocol-core-sub005/rpc"
	"github.com/CollarNetworks/protocol-core-sub005/storage"
)

// swapPoolFeeBips is the fee the built-in ledger swapper retains on each
// conversion routed through the operator pool.
const swapPoolFeeBips = 30

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	ephemeral := flag.Bool("ephemeral", false, "DEV ONLY: keep all state in memory instead of opening the data directory")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	logger := logging.Setup("collard", cfg.LogLevel)

	params, err := config.LoadParams(cfg.ParamsFile)
	if err != nil {
		logger.Error("Failed to load protocol params", slog.Any("error", err))
		os.Exit(1)
	}
	feeRecipient, err := params.FeeRecipientAddress()
	if err != nil {
		logger.Error("Failed to decode fee recipient", slog.Any("error", err))
		os.Exit(1)
	}
	signers, err := params.SignerAddresses()
	if err != nil {
		logger.Error("Failed to decode oracle signers", slog.Any("error", err))
		os.Exit(1)
	}

	var db storage.Database
	if *ephemeral {
		logger.Warn("Running with in-memory state; all data is lost on exit")
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			panic(fmt.Sprintf("Failed to open database: %v", err))
		}
		db = ldb
	}
	defer db.Close()

	st := state.NewCollarState(db)
	emitter := &logEmitter{log: logger}
	maxAge := time.Duration(params.MaxPriceAge) * time.Second

	// Feed priority follows the signer registry in lexicographic order;
	// operators reorder by renaming providers.
	priority := make([]string, 0, len(signers))
	for id := range signers {
		priority = append(priority, id)
	}
	sort.Strings(priority)
	oracle := pricing.NewAggregator(priority, maxAge, underlyingBaseUnit())

	verifier := pricing.NewProofVerifier(maxAge)
	for id, addr := range signers {
		verifier.RegisterSigner(id, addr)
	}

	providerEngine := provider.NewEngine(moduleAddress("provider"), provider.TermsBounds{
		MinDuration:       params.Provider.MinDuration,
		MaxDuration:       params.Provider.MaxDuration,
		MinPutStrikeBips:  params.Provider.MinPutStrikeBips,
		MaxPutStrikeBips:  params.Provider.MaxPutStrikeBips,
		MaxCallStrikeBips: params.Provider.MaxCallStrikeBips,
	})
	providerEngine.SetState(st.ProviderView())
	providerEngine.SetPauses(st)
	providerEngine.SetEmitter(emitter)
	providerEngine.SetProtocolFee(params.ProtocolFeeAPRBips, feeRecipient)

	takerEngine := taker.NewEngine(moduleAddress("taker"))
	takerEngine.SetState(st.TakerView())
	takerEngine.SetProviderEngine(providerEngine)
	takerEngine.SetOracle(oracle)
	takerEngine.SetPauses(st)
	takerEngine.SetEmitter(emitter)

	rollsEngine := rolls.NewEngine(moduleAddress("rolls"))
	rollsEngine.SetState(st.RollsView())
	rollsEngine.SetTakerEngine(takerEngine)
	rollsEngine.SetProviderEngine(providerEngine)
	rollsEngine.SetOracle(oracle)
	rollsEngine.SetPauses(st)
	rollsEngine.SetEmitter(emitter)

	escrowEngine := escrow.NewEngine(moduleAddress("escrow"), escrow.OfferBounds{
		MinDuration:    params.Provider.MinDuration,
		MaxDuration:    params.Provider.MaxDuration,
		MinGracePeriod: params.Escrow.MinGracePeriod,
		MaxGracePeriod: params.Escrow.MaxGracePeriod,
		MaxInterestAPR: params.Escrow.MaxInterestAPRBips,
		MaxLateFeeAPR:  params.Escrow.MaxLateFeeAPRBips,
	})
	escrowEngine.SetState(st.EscrowView())
	escrowEngine.SetPauses(st)
	escrowEngine.SetEmitter(emitter)

	swapper := swap.NewLedgerSwapper(st, oracle, moduleAddress("swap-pool"))
	swapper.SetFeeBips(swapPoolFeeBips)

	loansEngine := loans.NewEngine(moduleAddress("loans"))
	loansEngine.SetState(st.LoansView())
	loansEngine.SetTakerEngine(takerEngine)
	loansEngine.SetProviderEngine(providerEngine)
	loansEngine.SetRollsEngine(rollsEngine)
	loansEngine.SetEscrowEngine(escrowEngine)
	loansEngine.SetOracle(oracle)
	loansEngine.SetSwapper(swapper)
	loansEngine.SetMaxDeviation(params.MaxDeviationBips)
	loansEngine.SetPauses(st)
	loansEngine.SetEmitter(emitter)

	escrowEngine.SetLoansAuthority(loansEngine.ModuleAddress())

	var collarMetrics *metrics.CollarMetrics
	if cfg.MetricsEnabled {
		collarMetrics = metrics.Collar()
	}

	protocolNode := node.New(st, providerEngine, takerEngine, rollsEngine, escrowEngine, loansEngine)

	server := rpc.NewServer(rpc.Deps{
		Log:     logger,
		Metrics: collarMetrics,
		Node:    protocolNode,
		Oracle:  oracle,
		Proofs:  verifier,

		MaxDeviationBips: params.MaxDeviationBips,
		RateLimitRPS:     cfg.RateLimitRPS,
		RateLimitBurst:   cfg.RateLimitBurst,
		ServeMetrics:     cfg.MetricsEnabled,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("collard listening", slog.String("address", cfg.ListenAddress))
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutting down", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("Shutdown failed", slog.Any("error", err))
			os.Exit(1)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

// moduleAddress derives a deterministic vault address for the named module.
// Vaults never sign anything, so the address only needs to be collision free.
func moduleAddress(name string) [20]byte {
	digest := ethcrypto.Keccak256([]byte("collar/module/" + name))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}

// underlyingBaseUnit returns the amount of underlying one oracle price quote
// covers. The underlying asset carries 18 decimals.
func underlyingBaseUnit() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
}

// logEmitter forwards protocol events to the structured log. Deployments that
// index events subscribe here instead of polling state.
type logEmitter struct {
	log *slog.Logger
}

func (l *logEmitter) Emit(evt events.Event) {
	if l == nil || l.log == nil || evt == nil {
		return
	}
	attrs := []any{slog.String("event", evt.EventType())}
	if carrier, ok := evt.(interface{ Event() *coretypes.Event }); ok {
		if payload := carrier.Event(); payload != nil {
			for key, value := range payload.Attributes {
				attrs = append(attrs, slog.String(key, value))
			}
		}
	}
	l.log.Info("protocol event", attrs...)
}
