// internal/app/runner.go
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/vmelnikov/launchcore/internal/chain"
	"github.com/vmelnikov/launchcore/internal/config"
	"github.com/vmelnikov/launchcore/internal/curve"
	"github.com/vmelnikov/launchcore/internal/engine"
	"github.com/vmelnikov/launchcore/internal/events"
	"github.com/vmelnikov/launchcore/internal/market"
	"github.com/vmelnikov/launchcore/internal/metrics"
	"github.com/vmelnikov/launchcore/internal/pipeline"
	"github.com/vmelnikov/launchcore/internal/state"
	"github.com/vmelnikov/launchcore/internal/storage"
	"github.com/vmelnikov/launchcore/internal/storage/postgres"
	"github.com/vmelnikov/launchcore/internal/trade"
)

// Runner assembles the trading core from configuration and owns its
// lifecycle.
type Runner struct {
	cfg    *config.Config
	logger *zap.Logger

	engine     *engine.Engine
	shutdown   *ShutdownHandler
	shutdownCh chan os.Signal
}

func NewRunner(cfg *config.Config, logger *zap.Logger) *Runner {
	return &Runner{
		cfg:        cfg,
		logger:     logger,
		shutdown:   NewShutdownHandler(logger.Named("shutdown"), 30*time.Second),
		shutdownCh: make(chan os.Signal, 1),
	}
}

// Initialize dials the chain and wires every component. Nothing starts
// streaming until Run.
func (r *Runner) Initialize(ctx context.Context) error {
	launchpad := common.HexToAddress(r.cfg.LaunchpadAddress)

	client, err := chain.NewClient(ctx, r.cfg.RPCURL, launchpad, r.cfg.RPCTimeout(), r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect RPC endpoint: %w", err)
	}
	r.shutdown.AddFunc("rpc-client", func() error {
		client.Close()
		return nil
	})

	// Subscriptions need a WS endpoint. Without one the pipeline's
	// subscribe attempt fails and it settles into polling.
	var logSource chain.LogSource = client
	if r.cfg.WebSocketURL != "" {
		wsClient, err := chain.NewClient(ctx, r.cfg.WebSocketURL, launchpad, r.cfg.RPCTimeout(), r.logger)
		if err != nil {
			return fmt.Errorf("failed to connect WS endpoint: %w", err)
		}
		r.shutdown.AddFunc("ws-client", func() error {
			wsClient.Close()
			return nil
		})
		logSource = wsClient
	}

	cache := state.NewCache(client, r.cfg.CacheTTL(), r.logger)
	bus := events.NewBus(r.logger, r.cfg.EventBufferSize)
	pipe := pipeline.New(logSource, launchpad, cache, bus, pipeline.Config{
		PollInterval: r.cfg.PollInterval(),
		BufferSize:   r.cfg.EventBufferSize,
		StartBlock:   r.cfg.StartBlock,
	}, r.logger)

	pricer, err := r.buildPricer()
	if err != nil {
		return err
	}
	validator, err := r.buildValidator()
	if err != nil {
		return err
	}
	screen, err := r.buildScreen(bus)
	if err != nil {
		return err
	}
	resolver, err := r.buildFeeTiers()
	if err != nil {
		return err
	}
	quoter := r.buildQuoter(client)

	var store storage.Storage
	if r.cfg.PostgresURL != "" {
		store, err = postgres.NewStorage(r.cfg.PostgresURL, r.logger)
		if err != nil {
			return fmt.Errorf("failed to open postgres storage: %w", err)
		}
		if err := store.RunMigrations(); err != nil {
			return fmt.Errorf("failed to migrate storage: %w", err)
		}
		r.shutdown.AddFunc("storage", store.Close)
	}

	routerCfg := trade.RouterConfig{
		Launchpad:      launchpad,
		SwapRouter:     common.HexToAddress(r.cfg.SwapRouter),
		PlatformFeeBps: r.cfg.PlatformFeeBps,
		GasLimit:       r.cfg.GasLimit,
	}
	routerDeps := trade.RouterDeps{
		Pricer:    pricer,
		Cache:     cache,
		Validator: validator,
		Awaiter:   chain.NewAwaiter(client, r.logger, 500*time.Millisecond, r.cfg.ConfirmTimeout()),
		Quoter:    quoter,
		Screen:    screen,
		Fees:      resolver,
		Bus:       bus,
	}
	if store != nil {
		routerDeps.Recorder = store
	}
	if resolver != nil && r.cfg.StakingToken != "" {
		routerDeps.Balances = chain.NewStakingReader(client, common.HexToAddress(r.cfg.StakingToken))
	}
	router := trade.NewRouter(routerCfg, routerDeps, r.logger)

	r.engine = engine.New(engine.Deps{
		Router:   router,
		Cache:    cache,
		Pipeline: pipe,
		Bus:      bus,
		Store:    store,
		Metrics:  metrics.NewCollector(),
	}, r.logger)

	return nil
}

// Engine exposes the assembled trading core.
func (r *Runner) Engine() *engine.Engine {
	return r.engine
}

// Run starts the engine and blocks until a termination signal arrives.
func (r *Runner) Run(ctx context.Context) error {
	signal.Notify(r.shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	if err := r.engine.Start(ctx); err != nil {
		return err
	}
	r.shutdown.AddFunc("engine", func() error {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return r.engine.Stop(stopCtx)
	})

	r.logger.Info("Trading core running",
		zap.String("launchpad", r.cfg.LaunchpadAddress),
		zap.Bool("websocket", r.cfg.WebSocketURL != ""),
		zap.Bool("persistence", r.cfg.PostgresURL != ""))

	select {
	case sig := <-r.shutdownCh:
		r.logger.Info("Signal received", zap.String("signal", sig.String()))
	case <-ctx.Done():
		r.logger.Info("Context cancelled")
	}

	r.shutdown.Shutdown()
	return nil
}

func (r *Runner) curveParams() (curve.Params, error) {
	base, err := r.cfg.CurveBasePrice()
	if err != nil {
		return curve.Params{}, err
	}
	increment, err := r.cfg.CurvePriceIncrement()
	if err != nil {
		return curve.Params{}, err
	}
	step, err := r.cfg.CurveStepSize()
	if err != nil {
		return curve.Params{}, err
	}
	ceiling, err := r.cfg.CurveSaleCeiling()
	if err != nil {
		return curve.Params{}, err
	}
	return curve.Params{
		BasePrice:      base,
		PriceIncrement: increment,
		StepSize:       step,
		SaleCeiling:    ceiling,
	}, nil
}

func (r *Runner) buildPricer() (*curve.Pricer, error) {
	params, err := r.curveParams()
	if err != nil {
		return nil, err
	}
	return curve.NewPricer(params)
}

func (r *Runner) buildValidator() (*trade.Validator, error) {
	minBuy, err := r.cfg.MinBuyAmount()
	if err != nil {
		return nil, err
	}
	params, err := r.curveParams()
	if err != nil {
		return nil, err
	}
	return trade.NewValidator(trade.ValidatorConfig{
		MinBuyAmount:       minBuy,
		MaxPriceImpactBps:  r.cfg.MaxPriceImpactBps,
		MaxPoolFractionBps: r.cfg.MaxPoolFractionBps,
	}, params), nil
}

func (r *Runner) buildScreen(bus *events.Bus) (*trade.Screen, error) {
	volume, err := r.cfg.ThreatVolumeThreshold()
	if err != nil {
		return nil, err
	}
	return trade.NewScreen(trade.ScreenConfig{
		Window:          r.cfg.ThreatWindow(),
		VolumeThreshold: volume,
		MaxSpreadBps:    r.cfg.ThreatMaxSpreadBps,
	}, bus, r.logger), nil
}

func (r *Runner) buildFeeTiers() (*trade.FeeTierResolver, error) {
	if len(r.cfg.FeeTiers) == 0 {
		return nil, nil
	}
	tiers := make([]trade.FeeTier, 0, len(r.cfg.FeeTiers))
	for _, entry := range r.cfg.FeeTiers {
		balance, err := entry.MinBalance()
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, trade.FeeTier{
			Name:        entry.Name,
			MinBalance:  balance,
			DiscountBps: entry.DiscountBps,
		})
	}
	return trade.NewFeeTierResolver(tiers)
}

func (r *Runner) buildQuoter(client *chain.Client) *market.Quoter {
	if len(r.cfg.FactoryAddresses) == 0 || r.cfg.WNativeAddress == "" {
		return nil
	}
	factories := make([]common.Address, 0, len(r.cfg.FactoryAddresses))
	for _, addr := range r.cfg.FactoryAddresses {
		factories = append(factories, common.HexToAddress(addr))
	}
	quoteTokens := make([]common.Address, 0, len(r.cfg.QuoteTokens))
	for _, addr := range r.cfg.QuoteTokens {
		quoteTokens = append(quoteTokens, common.HexToAddress(addr))
	}
	wnative := common.HexToAddress(r.cfg.WNativeAddress)
	source := market.NewFactorySource(client, factories, quoteTokens, 30, r.cfg.RPCTimeout(), r.logger)
	cached := market.NewCachingSource(source, 5*time.Second)
	return market.NewQuoter(cached, wnative, r.logger)
}
