// internal/engine/engine.go
package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/vmelnikov/launchcore/internal/chain"
	"github.com/vmelnikov/launchcore/internal/domain"
	"github.com/vmelnikov/launchcore/internal/events"
	"github.com/vmelnikov/launchcore/internal/export"
	"github.com/vmelnikov/launchcore/internal/metrics"
	"github.com/vmelnikov/launchcore/internal/pipeline"
	"github.com/vmelnikov/launchcore/internal/state"
	"github.com/vmelnikov/launchcore/internal/storage"
	"github.com/vmelnikov/launchcore/internal/storage/models"
	"github.com/vmelnikov/launchcore/internal/trade"
)

// Deps wires the engine's collaborators. Pipeline and Store are optional:
// without a pipeline the cache falls back to pure TTL refresh, without a
// store nothing is persisted.
type Deps struct {
	Router   *trade.Router
	Cache    *state.Cache
	Pipeline *pipeline.Pipeline
	Bus      *events.Bus
	Store    storage.Storage
	Metrics  *metrics.Collector
}

// Engine is the public surface of the trading core: quoting, execution,
// state reads and event subscription behind one facade.
type Engine struct {
	deps   Deps
	logger *zap.Logger

	persistSubs []events.Subscription
	metricsSubs []events.Subscription
}

func New(deps Deps, logger *zap.Logger) *Engine {
	return &Engine{
		deps:   deps,
		logger: logger.Named("engine"),
	}
}

// Start brings up event ingestion and attaches persistence handlers.
func (e *Engine) Start(ctx context.Context) error {
	if e.deps.Store != nil {
		e.attachPersistence()
	}
	if e.deps.Metrics != nil {
		e.metricsSubs = e.deps.Metrics.Attach(e.deps.Bus)
	}
	if e.deps.Pipeline != nil {
		if err := e.deps.Pipeline.Start(ctx); err != nil {
			return fmt.Errorf("failed to start event pipeline: %w", err)
		}
	}
	e.logger.Info("Engine started")
	return nil
}

// Stop shuts the pipeline and drains the bus.
func (e *Engine) Stop(ctx context.Context) error {
	if e.deps.Pipeline != nil {
		e.deps.Pipeline.Stop()
	}
	for _, sub := range e.persistSubs {
		sub.Unsubscribe()
	}
	for _, sub := range e.metricsSubs {
		sub.Unsubscribe()
	}
	if e.deps.Bus != nil {
		if err := e.deps.Bus.Shutdown(ctx); err != nil {
			return err
		}
	}
	e.logger.Info("Engine stopped")
	return nil
}

// GetQuote prices a trade intent without touching the chain's write path.
func (e *Engine) GetQuote(ctx context.Context, intent *domain.TradeIntent) (*trade.Quote, error) {
	return e.deps.Router.GetQuote(ctx, intent)
}

// ExecuteTrade runs the full trade lifecycle through the supplied signer.
func (e *Engine) ExecuteTrade(ctx context.Context, intent *domain.TradeIntent, signer chain.Signer) (*domain.TradeResult, error) {
	return e.deps.Router.ExecuteTrade(ctx, intent, signer)
}

// GetTokenState returns the token's sale state, cached within the TTL.
func (e *Engine) GetTokenState(ctx context.Context, token common.Address) (*domain.TokenSaleState, error) {
	return e.deps.Cache.Get(ctx, token)
}

// Subscribe registers a handler for an event type. The returned
// subscription unregisters it.
func (e *Engine) Subscribe(eventType events.EventType, handler events.Handler) events.Subscription {
	return e.deps.Bus.Subscribe(eventType, handler)
}

// SubscribeFunc is the closure form of Subscribe.
func (e *Engine) SubscribeFunc(eventType events.EventType, fn func(context.Context, events.Event) error) events.Subscription {
	return e.deps.Bus.SubscribeFunc(eventType, fn)
}

// ExportTradeHistory writes a trader's persisted trades to a file and
// returns its path. Requires a configured store.
func (e *Engine) ExportTradeHistory(ctx context.Context, trader common.Address, opts export.Options) (string, error) {
	if e.deps.Store == nil {
		return "", fmt.Errorf("trade history export requires a configured store")
	}

	const pageSize = 500
	var all []*models.Trade
	for offset := 0; ; offset += pageSize {
		page, err := e.deps.Store.ListTrades(ctx, trader.Hex(), pageSize, offset)
		if err != nil {
			return "", fmt.Errorf("failed to load trade history: %w", err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
	}

	exporter := export.NewTradeExporter(e.logger)
	return exporter.Export(all, opts)
}

// attachPersistence mirrors pipeline and screen events into storage.
// Handlers only read the cache and write rows; they never touch pipeline
// state.
func (e *Engine) attachPersistence() {
	upsert := func(ctx context.Context, token common.Address) error {
		st, err := e.deps.Cache.Get(ctx, token)
		if err != nil {
			return fmt.Errorf("failed to read state for persistence: %w", err)
		}
		return e.deps.Store.UpsertToken(ctx, st)
	}

	for _, eventType := range []events.EventType{
		events.TokenCreated,
		events.TokenTraded,
		events.TokenLaunched,
	} {
		sub := e.deps.Bus.SubscribeFunc(eventType, func(ctx context.Context, ev events.Event) error {
			token, ok := tokenOf(ev)
			if !ok {
				return nil
			}
			if err := upsert(ctx, token); err != nil {
				e.logger.Warn("Token persistence failed",
					zap.String("token", token.Hex()),
					zap.Error(err))
			}
			return nil
		})
		e.persistSubs = append(e.persistSubs, sub)
	}

	threatSub := e.deps.Bus.SubscribeFunc(events.ThreatDetected, func(ctx context.Context, ev events.Event) error {
		threat, ok := ev.(events.ThreatDetectedEvent)
		if !ok {
			return nil
		}
		row := &models.Threat{
			Token:       threat.Token.Hex(),
			Kind:        threat.Kind,
			Description: threat.Description,
			DetectedAt:  threat.Timestamp(),
		}
		if err := e.deps.Store.SaveThreat(ctx, row); err != nil {
			e.logger.Warn("Threat persistence failed", zap.Error(err))
		}
		return nil
	})
	e.persistSubs = append(e.persistSubs, threatSub)
}

func tokenOf(ev events.Event) (common.Address, bool) {
	switch typed := ev.(type) {
	case *events.TokenCreatedEvent:
		return typed.Token, true
	case *events.TokenTradedEvent:
		return typed.Token, true
	case *events.TokenLaunchedEvent:
		return typed.Token, true
	default:
		return common.Address{}, false
	}
}
