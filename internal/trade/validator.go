// internal/trade/validator.go
package trade

import (
	"fmt"
	"math/big"

	"github.com/vmelnikov/launchcore/internal/curve"
	"github.com/vmelnikov/launchcore/internal/domain"
)

// ValidatorConfig bounds what a trade may look like. MaxPriceImpactBps is
// the single impact ceiling shared by curve and market routes.
type ValidatorConfig struct {
	MinBuyAmount       *big.Int // wei; zero disables the floor
	MaxPriceImpactBps  int64
	MaxPoolFractionBps int64 // market routes only
}

// DefaultValidatorConfig allows up to 15% price impact and trades
// consuming up to 30% of a pool's input reserve.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MinBuyAmount:       big.NewInt(0),
		MaxPriceImpactBps:  1_500,
		MaxPoolFractionBps: 3_000,
	}
}

// Validator rejects trades before any chain write. Validate is pure and
// synchronous; a nil return means the trade may proceed.
type Validator struct {
	cfg    ValidatorConfig
	params curve.Params
}

func NewValidator(cfg ValidatorConfig, params curve.Params) *Validator {
	return &Validator{cfg: cfg, params: params}
}

// Validate checks intent against state and the computed quote. Rejections
// carry a taxonomy code and happen before any chain submission.
func (v *Validator) Validate(intent *domain.TradeIntent, state *domain.TokenSaleState, quote *Quote) error {
	if intent.Amount == nil || intent.Amount.Sign() <= 0 {
		return NewError(CodeAmountTooLow, "trade amount must be positive", nil)
	}

	switch quote.Route.Kind {
	case RouteCurve:
		if state.IsLaunched {
			return NewError(CodeTokenNotTradeable,
				fmt.Sprintf("token %s has graduated to open-market trading", state.Address.Hex()), nil)
		}
		if !state.IsOpen {
			return NewError(CodeTokenNotTradeable,
				fmt.Sprintf("sale for token %s is closed", state.Address.Hex()), nil)
		}
	case RouteMarket, RouteMultiHop:
		if !state.IsLaunched {
			return NewError(CodeTokenNotTradeable,
				fmt.Sprintf("token %s has not graduated; market routes unavailable", state.Address.Hex()), nil)
		}
	default:
		return NewError(CodeUnknown, fmt.Sprintf("unrecognized route kind %s", quote.Route.Kind), nil)
	}

	if intent.Side == domain.SideBuy && v.cfg.MinBuyAmount != nil && v.cfg.MinBuyAmount.Sign() > 0 {
		if intent.Amount.Cmp(v.cfg.MinBuyAmount) < 0 {
			return NewError(CodeAmountTooLow,
				fmt.Sprintf("buy of %s wei is below the %s wei minimum", intent.Amount, v.cfg.MinBuyAmount), nil)
		}
	}

	if quote.Route.Kind == RouteCurve {
		if err := v.checkCurveBounds(intent, state, quote); err != nil {
			return err
		}
	}

	// Excess impact is rejected, never capped.
	if quote.PriceImpactBps > v.cfg.MaxPriceImpactBps {
		return NewError(CodePriceImpactTooHigh,
			fmt.Sprintf("price impact %d bps exceeds the %d bps ceiling", quote.PriceImpactBps, v.cfg.MaxPriceImpactBps), nil)
	}

	if quote.Route.Market != nil && v.cfg.MaxPoolFractionBps > 0 {
		if f := quote.Route.Market.PoolFractionBps; f > v.cfg.MaxPoolFractionBps {
			return NewError(CodeInsufficientLiquidity,
				fmt.Sprintf("trade consumes %d bps of pool reserves, limit is %d bps", f, v.cfg.MaxPoolFractionBps), nil)
		}
	}

	return nil
}

func (v *Validator) checkCurveBounds(intent *domain.TradeIntent, state *domain.TokenSaleState, quote *Quote) error {
	sold := state.SoldAmount
	if sold == nil {
		sold = big.NewInt(0)
	}

	switch intent.Side {
	case domain.SideBuy:
		// AmountOut is post-fee; the sale ceiling binds the gross amount
		// leaving the curve.
		gross := new(big.Int).Add(quote.AmountOut, quote.FeeAmount)
		if after := new(big.Int).Add(sold, gross); after.Cmp(v.params.SaleCeiling) > 0 {
			return NewError(CodeAmountTooHigh,
				fmt.Sprintf("buy would push sold to %s past the %s ceiling", after, v.params.SaleCeiling), nil)
		}
	case domain.SideSell:
		if intent.Amount.Cmp(sold) > 0 {
			return NewError(CodeAmountTooHigh,
				fmt.Sprintf("sell of %s exceeds the %s tokens sold on the curve", intent.Amount, sold), nil)
		}
	}
	return nil
}
