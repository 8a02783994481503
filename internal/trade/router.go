// internal/trade/router.go
package trade

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vmelnikov/launchcore/internal/chain"
	"github.com/vmelnikov/launchcore/internal/curve"
	"github.com/vmelnikov/launchcore/internal/domain"
	"github.com/vmelnikov/launchcore/internal/events"
	"github.com/vmelnikov/launchcore/internal/market"
	"github.com/vmelnikov/launchcore/internal/state"
)

// Recorder persists terminal trade records. Durability lives outside this
// core; a save failure is logged, never surfaced to the trader.
type Recorder interface {
	SaveTrade(ctx context.Context, result *domain.TradeResult) error
}

// RouterConfig holds the per-deployment trade parameters.
type RouterConfig struct {
	Launchpad      common.Address
	SwapRouter     common.Address // optional; required for market execution
	PlatformFeeBps uint32
	GasLimit       uint64
}

// RouterDeps wires the router's collaborators. Quoter, Screen, Fees,
// Balances, Bus and Recorder are optional; the rest are required.
type RouterDeps struct {
	Pricer    *curve.Pricer
	Cache     *state.Cache
	Validator *Validator
	Awaiter   *chain.Awaiter
	Quoter    *market.Quoter
	Screen    *Screen
	Fees      *FeeTierResolver
	Balances  BalanceSource
	Bus       *events.Bus
	Recorder  Recorder
}

// Router prices and executes trades. Quotes carry no authority: execution
// always revalidates against freshly read state, accepting the TOCTOU
// window because the contract itself is the final arbiter.
type Router struct {
	cfg    RouterConfig
	deps   RouterDeps
	logger *zap.Logger
}

func NewRouter(cfg RouterConfig, deps RouterDeps, logger *zap.Logger) *Router {
	if cfg.GasLimit == 0 {
		cfg.GasLimit = 500_000
	}
	return &Router{
		cfg:    cfg,
		deps:   deps,
		logger: logger.Named("trade-router"),
	}
}

// GetQuote prices an intent against cached state. Idempotent and freely
// cancellable; it performs no chain writes.
func (r *Router) GetQuote(ctx context.Context, intent *domain.TradeIntent) (*Quote, error) {
	if err := checkIntent(intent); err != nil {
		return nil, err
	}

	st, err := r.deps.Cache.Get(ctx, intent.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to read token state: %w", err)
	}

	quote, err := r.buildQuote(ctx, intent, st)
	if err != nil {
		return nil, err
	}
	if err := r.deps.Validator.Validate(intent, st, quote); err != nil {
		return nil, err
	}
	return quote, nil
}

// ExecuteTrade runs the full lifecycle: revalidate against fresh state,
// advisory threat screen, sign and broadcast through the external signer,
// await the receipt. Once broadcast the trade cannot be cancelled here.
func (r *Router) ExecuteTrade(ctx context.Context, intent *domain.TradeIntent, signer chain.Signer) (*domain.TradeResult, error) {
	if err := checkIntent(intent); err != nil {
		return nil, err
	}
	if signer == nil {
		return nil, NewError(CodeUnknown, "no signer supplied", nil)
	}

	tradeID := uuid.New().String()
	logger := r.logger.With(
		zap.String("trade_id", tradeID),
		zap.String("token", intent.Token.Hex()),
		zap.String("side", string(intent.Side)))
	logger.Info("Trade initiated",
		zap.String("amount", intent.Amount.String()))

	// Quotes go stale; the execute path always re-reads and revalidates.
	st, err := r.deps.Cache.GetFresh(ctx, intent.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to read fresh token state: %w", err)
	}

	quote, err := r.buildQuote(ctx, intent, st)
	if err != nil {
		r.publishFailure(tradeID, intent.Token, err)
		return nil, err
	}
	if err := r.deps.Validator.Validate(intent, st, quote); err != nil {
		r.publishFailure(tradeID, intent.Token, err)
		return nil, err
	}
	logger.Debug("Trade routed",
		zap.String("route", quote.Route.Kind.String()),
		zap.String("amount_out", quote.AmountOut.String()),
		zap.Int64("impact_bps", quote.PriceImpactBps))

	// Advisory only. Findings are published and logged, never enforced.
	if r.deps.Screen != nil {
		r.deps.Screen.Check(intent.Token, quote)
	}

	req, err := r.buildTxRequest(intent, quote)
	if err != nil {
		r.publishFailure(tradeID, intent.Token, err)
		return nil, err
	}

	logger.Debug("Broadcasting trade")
	hash, err := signer.SendTransaction(ctx, req)
	if err != nil {
		coded := Classify(err)
		r.publishFailure(tradeID, intent.Token, coded)
		return nil, coded
	}
	logger = logger.With(zap.String("tx_hash", hash.Hex()))

	receipt, err := r.deps.Awaiter.Await(ctx, hash)
	if err != nil {
		// The transaction may still land; callers must check chain state.
		coded := NewError(CodeDeadlineExceeded, "confirmation window expired", err)
		if errors.Is(err, context.Canceled) {
			coded = NewError(CodeUnknown, "confirmation wait aborted", err)
		}
		r.publishFailure(tradeID, intent.Token, coded)
		return nil, coded
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		coded := NewError(CodeUnknown, "transaction reverted on-chain", nil)
		r.publishFailure(tradeID, intent.Token, coded)
		return nil, coded
	}

	actualOut := r.actualAmountOut(receipt, intent, quote)
	realized := domain.RealizedSlippageBps(intent.MinAmountOut, actualOut)
	if intent.MinAmountOut != nil && realized > int64(intent.SlippageBps) {
		// The chain transaction is final; all we owe the caller is a
		// warning, not a reversal.
		logger.Warn("Realized slippage exceeded requested tolerance",
			zap.Int64("realized_bps", realized),
			zap.Uint32("tolerance_bps", intent.SlippageBps))
	}

	result := &domain.TradeResult{
		ID:                  tradeID,
		Side:                intent.Side,
		Token:               intent.Token,
		Trader:              intent.Trader,
		AmountIn:            new(big.Int).Set(intent.Amount),
		AmountOut:           actualOut,
		FeePaid:             quote.FeeAmount,
		TxHash:              hash,
		BlockNumber:         receipt.BlockNumber.Uint64(),
		GasUsed:             receipt.GasUsed,
		RealizedSlippageBps: realized,
		CompletedAt:         time.Now(),
	}

	if r.deps.Recorder != nil {
		if err := r.deps.Recorder.SaveTrade(ctx, result); err != nil {
			logger.Error("Failed to persist trade record", zap.Error(err))
		}
	}
	if r.deps.Bus != nil {
		r.deps.Bus.Publish(events.TradeExecutedEvent{
			BaseEvent:           events.BaseEvent{EventType: events.TradeExecuted, EventTime: time.Now()},
			TradeID:             tradeID,
			Token:               intent.Token,
			TxHash:              hash,
			AmountIn:            result.AmountIn,
			AmountOut:           result.AmountOut,
			GasUsed:             result.GasUsed,
			RealizedSlippageBps: result.RealizedSlippageBps,
		})
	}

	logger.Info("Trade confirmed",
		zap.Uint64("block", result.BlockNumber),
		zap.String("amount_out", actualOut.String()),
		zap.Int64("realized_slippage_bps", realized))
	return result, nil
}

func checkIntent(intent *domain.TradeIntent) error {
	if intent == nil {
		return NewError(CodeUnknown, "nil trade intent", nil)
	}
	if intent.Side != domain.SideBuy && intent.Side != domain.SideSell {
		return NewError(CodeUnknown, fmt.Sprintf("unrecognized trade side %q", intent.Side), nil)
	}
	if intent.Amount == nil || intent.Amount.Sign() <= 0 {
		return NewError(CodeAmountTooLow, "trade amount must be positive", nil)
	}
	return nil
}

// buildQuote selects the route for the token's lifecycle phase: bonding
// curve while the sale is open, market routes after graduation.
func (r *Router) buildQuote(ctx context.Context, intent *domain.TradeIntent, st *domain.TokenSaleState) (*Quote, error) {
	switch {
	case st.Tradeable():
		return r.curveQuote(ctx, intent, st)
	case st.IsLaunched:
		if r.deps.Quoter == nil {
			return nil, NewError(CodeTokenNotTradeable,
				fmt.Sprintf("token %s has graduated and market routing is not configured", intent.Token.Hex()), nil)
		}
		return r.marketQuote(ctx, intent)
	default:
		return nil, NewError(CodeTokenNotTradeable,
			fmt.Sprintf("sale for token %s is closed", intent.Token.Hex()), nil)
	}
}

func (r *Router) curveQuote(ctx context.Context, intent *domain.TradeIntent, st *domain.TokenSaleState) (*Quote, error) {
	sold := st.SoldAmount
	if sold == nil {
		sold = big.NewInt(0)
	}
	feeBps := r.effectiveFeeBps(ctx, intent.Trader)

	var (
		gross  *big.Int
		impact int64
		err    error
	)
	switch intent.Side {
	case domain.SideBuy:
		gross, err = r.deps.Pricer.TokensOut(sold, intent.Amount)
		if err != nil {
			return nil, codeCurveError(err)
		}
		impact, err = r.deps.Pricer.BuyImpactBps(sold, intent.Amount, gross)
	default:
		gross, err = r.deps.Pricer.NativeOut(sold, intent.Amount)
		if err != nil {
			return nil, codeCurveError(err)
		}
		impact, err = r.deps.Pricer.SellImpactBps(sold, intent.Amount, gross)
	}
	if err != nil {
		return nil, codeCurveError(err)
	}

	net, fee := curve.ApplyFeeBps(gross, feeBps)

	quote := &Quote{
		PriceQuote: domain.PriceQuote{
			Side:           intent.Side,
			Token:          intent.Token,
			AmountIn:       new(big.Int).Set(intent.Amount),
			AmountOut:      net,
			FeeAmount:      fee,
			PricePerToken:  pricePerToken(intent.Side, intent.Amount, gross),
			PriceImpactBps: impact,
			MinReceived:    minReceived(intent, net),
			QuotedAt:       time.Now(),
		},
		Route: Route{Kind: RouteCurve},
	}
	return quote, nil
}

func (r *Router) marketQuote(ctx context.Context, intent *domain.TradeIntent) (*Quote, error) {
	var (
		routes []*market.RouteQuote
		err    error
	)
	if intent.Side == domain.SideBuy {
		routes, err = r.deps.Quoter.BuyRoutes(ctx, intent.Token, intent.Amount)
	} else {
		routes, err = r.deps.Quoter.SellRoutes(ctx, intent.Token, intent.Amount)
	}
	if err != nil {
		return nil, fmt.Errorf("market route discovery failed: %w", err)
	}

	best := market.Best(routes)
	if best == nil {
		return nil, NewError(CodeRouteNotFound,
			fmt.Sprintf("no market route with liquidity for token %s", intent.Token.Hex()), nil)
	}

	quote := &Quote{
		PriceQuote: domain.PriceQuote{
			Side:     intent.Side,
			Token:    intent.Token,
			AmountIn: new(big.Int).Set(intent.Amount),
			// Pool fees are embedded in the AMM output; no platform fee
			// applies post-graduation.
			AmountOut:      best.AmountOut,
			FeeAmount:      big.NewInt(0),
			PricePerToken:  pricePerToken(intent.Side, intent.Amount, best.AmountOut),
			PriceImpactBps: best.ImpactBps,
			MinReceived:    minReceived(intent, best.AmountOut),
			QuotedAt:       time.Now(),
		},
		Route: routeFor(best),
	}
	return quote, nil
}

// buildTxRequest matches exhaustively over the route kinds.
func (r *Router) buildTxRequest(intent *domain.TradeIntent, quote *Quote) (*chain.TxRequest, error) {
	switch quote.Route.Kind {
	case RouteCurve:
		if intent.Side == domain.SideBuy {
			data, err := chain.BuyCallData(intent.Token, quote.MinReceived)
			if err != nil {
				return nil, NewError(CodeUnknown, "failed to encode buy calldata", err)
			}
			return &chain.TxRequest{
				From:     intent.Trader,
				To:       r.cfg.Launchpad,
				Value:    new(big.Int).Set(intent.Amount),
				Data:     data,
				GasLimit: r.cfg.GasLimit,
			}, nil
		}
		data, err := chain.SellCallData(intent.Token, intent.Amount, quote.MinReceived)
		if err != nil {
			return nil, NewError(CodeUnknown, "failed to encode sell calldata", err)
		}
		return &chain.TxRequest{
			From:     intent.Trader,
			To:       r.cfg.Launchpad,
			Value:    big.NewInt(0),
			Data:     data,
			GasLimit: r.cfg.GasLimit,
		}, nil

	case RouteMarket, RouteMultiHop:
		if (r.cfg.SwapRouter == common.Address{}) {
			return nil, NewError(CodeRouteNotFound, "swap router address not configured", nil)
		}
		path := quote.Route.Market.Path
		if intent.Side == domain.SideBuy {
			data, err := market.BuySwapCallData(quote.MinReceived, path, intent.Trader)
			if err != nil {
				return nil, NewError(CodeUnknown, "failed to encode swap calldata", err)
			}
			return &chain.TxRequest{
				From:     intent.Trader,
				To:       r.cfg.SwapRouter,
				Value:    new(big.Int).Set(intent.Amount),
				Data:     data,
				GasLimit: r.cfg.GasLimit,
			}, nil
		}
		data, err := market.SellSwapCallData(intent.Amount, quote.MinReceived, path, intent.Trader)
		if err != nil {
			return nil, NewError(CodeUnknown, "failed to encode swap calldata", err)
		}
		return &chain.TxRequest{
			From:     intent.Trader,
			To:       r.cfg.SwapRouter,
			Value:    big.NewInt(0),
			Data:     data,
			GasLimit: r.cfg.GasLimit,
		}, nil

	default:
		return nil, NewError(CodeUnknown, fmt.Sprintf("unrecognized route kind %s", quote.Route.Kind), nil)
	}
}

// actualAmountOut recovers the realized output from the receipt's trade
// log, falling back to the quoted amount when the log is absent.
func (r *Router) actualAmountOut(receipt *types.Receipt, intent *domain.TradeIntent, quote *Quote) *big.Int {
	for _, lg := range receipt.Logs {
		if lg == nil || len(lg.Topics) < 2 || lg.Topics[0] != chain.TopicTokenTraded {
			continue
		}
		if common.BytesToAddress(lg.Topics[1].Bytes()) != intent.Token {
			continue
		}
		out, err := chain.LaunchpadABI().Unpack("TokenTraded", lg.Data)
		if err != nil {
			r.logger.Warn("Failed to decode trade log from receipt", zap.Error(err))
			break
		}
		return out[2].(*big.Int)
	}
	return new(big.Int).Set(quote.AmountOut)
}

func (r *Router) effectiveFeeBps(ctx context.Context, trader common.Address) uint32 {
	feeBps := r.cfg.PlatformFeeBps
	if r.deps.Fees == nil {
		return feeBps
	}
	tier := BaseTier
	if r.deps.Balances != nil {
		balance, err := r.deps.Balances.StakedBalance(ctx, trader)
		if err != nil {
			// Tier lookup failure costs the trader their discount, never
			// the trade.
			r.logger.Warn("Staked balance lookup failed, using base tier",
				zap.String("trader", trader.Hex()),
				zap.Error(err))
		} else {
			tier = r.deps.Fees.Resolve(balance)
		}
	}
	return EffectiveFeeBps(feeBps, tier)
}

func (r *Router) publishFailure(tradeID string, token common.Address, err error) {
	if r.deps.Bus == nil {
		return
	}
	r.deps.Bus.Publish(events.TradeFailedEvent{
		BaseEvent: events.BaseEvent{EventType: events.TradeFailed, EventTime: time.Now()},
		TradeID:   tradeID,
		Token:     token,
		Code:      string(CodeOf(err)),
		Reason:    err.Error(),
	})
}

func codeCurveError(err error) error {
	switch {
	case errors.Is(err, curve.ErrSaleCeilingExceeded):
		return NewError(CodeAmountTooHigh, "buy exceeds the sale ceiling", err)
	case errors.Is(err, curve.ErrSellExceedsSold):
		return NewError(CodeAmountTooHigh, "sell exceeds tokens sold on the curve", err)
	case errors.Is(err, curve.ErrNonPositiveAmount):
		return NewError(CodeAmountTooLow, "trade amount must be positive", err)
	default:
		return fmt.Errorf("curve pricing failed: %w", err)
	}
}

// pricePerToken reports the effective native price per whole token. Both
// legs are 18-decimal base units, so the raw ratio is already the unit
// price.
func pricePerToken(side domain.TradeSide, amountIn, amountOut *big.Int) decimal.Decimal {
	var native, tokens *big.Int
	if side == domain.SideBuy {
		native, tokens = amountIn, amountOut
	} else {
		native, tokens = amountOut, amountIn
	}
	if tokens == nil || tokens.Sign() == 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(native, 0).Div(decimal.NewFromBigInt(tokens, 0))
}

// minReceived honors an explicit floor, otherwise derives one from the
// requested slippage tolerance.
func minReceived(intent *domain.TradeIntent, out *big.Int) *big.Int {
	if intent.MinAmountOut != nil && intent.MinAmountOut.Sign() > 0 {
		return new(big.Int).Set(intent.MinAmountOut)
	}
	if intent.SlippageBps >= 10_000 {
		return big.NewInt(0)
	}
	floor := new(big.Int).Mul(out, big.NewInt(10_000-int64(intent.SlippageBps)))
	return floor.Div(floor, big.NewInt(10_000))
}
