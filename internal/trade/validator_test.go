package trade

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmelnikov/launchcore/internal/curve"
	"github.com/vmelnikov/launchcore/internal/domain"
	"github.com/vmelnikov/launchcore/internal/market"
)

func wei(native int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(native), big.NewInt(1e18))
}

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func testCurveParams() curve.Params {
	return curve.Params{
		BasePrice:      big.NewInt(1e14),
		PriceIncrement: big.NewInt(1e14),
		StepSize:       tokens(10_000),
		SaleCeiling:    tokens(800_000),
	}
}

func openState() *domain.TokenSaleState {
	return &domain.TokenSaleState{
		Address:      common.HexToAddress("0xabc0000000000000000000000000000000000001"),
		SoldAmount:   tokens(50_000),
		RaisedAmount: wei(15),
		IsOpen:       true,
	}
}

func curveQuoteFixture(side domain.TradeSide, out *big.Int, impactBps int64) *Quote {
	return &Quote{
		PriceQuote: domain.PriceQuote{
			Side:           side,
			AmountOut:      out,
			FeeAmount:      big.NewInt(0),
			PriceImpactBps: impactBps,
		},
		Route: Route{Kind: RouteCurve},
	}
}

func TestValidate_AcceptsOpenCurveTrade(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig(), testCurveParams())
	intent := &domain.TradeIntent{Side: domain.SideBuy, Amount: wei(1)}

	err := v.Validate(intent, openState(), curveQuoteFixture(domain.SideBuy, tokens(5_000), 200))
	assert.NoError(t, err)
}

func TestValidate_RejectsLaunchedToken(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig(), testCurveParams())
	intent := &domain.TradeIntent{Side: domain.SideBuy, Amount: wei(1)}

	st := openState()
	st.IsOpen = false
	st.IsLaunched = true

	err := v.Validate(intent, st, curveQuoteFixture(domain.SideBuy, tokens(5_000), 200))
	require.Error(t, err)
	assert.Equal(t, CodeTokenNotTradeable, CodeOf(err))
}

func TestValidate_RejectsClosedSale(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig(), testCurveParams())
	intent := &domain.TradeIntent{Side: domain.SideSell, Amount: tokens(100)}

	st := openState()
	st.IsOpen = false

	err := v.Validate(intent, st, curveQuoteFixture(domain.SideSell, wei(1), 0))
	require.Error(t, err)
	assert.Equal(t, CodeTokenNotTradeable, CodeOf(err))
}

func TestValidate_RejectsBuyBelowMinimum(t *testing.T) {
	cfg := DefaultValidatorConfig()
	cfg.MinBuyAmount = big.NewInt(1e15) // 0.001 native
	v := NewValidator(cfg, testCurveParams())

	intent := &domain.TradeIntent{Side: domain.SideBuy, Amount: big.NewInt(1e12)}
	err := v.Validate(intent, openState(), curveQuoteFixture(domain.SideBuy, tokens(1), 0))
	require.Error(t, err)
	assert.Equal(t, CodeAmountTooLow, CodeOf(err))
}

func TestValidate_RejectsBuyPastCeiling(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig(), testCurveParams())

	st := openState()
	st.SoldAmount = tokens(795_000)

	intent := &domain.TradeIntent{Side: domain.SideBuy, Amount: wei(100)}
	err := v.Validate(intent, st, curveQuoteFixture(domain.SideBuy, tokens(10_000), 100))
	require.Error(t, err)
	assert.Equal(t, CodeAmountTooHigh, CodeOf(err))
}

func TestValidate_RejectsOversell(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig(), testCurveParams())

	intent := &domain.TradeIntent{Side: domain.SideSell, Amount: tokens(60_000)}
	err := v.Validate(intent, openState(), curveQuoteFixture(domain.SideSell, wei(10), 100))
	require.Error(t, err)
	assert.Equal(t, CodeAmountTooHigh, CodeOf(err))
}

func TestValidate_RejectsExcessPriceImpact(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig(), testCurveParams())
	intent := &domain.TradeIntent{Side: domain.SideBuy, Amount: wei(10)}

	// 20% computed impact against the 15% ceiling.
	err := v.Validate(intent, openState(), curveQuoteFixture(domain.SideBuy, tokens(30_000), 2_000))
	require.Error(t, err)
	assert.Equal(t, CodePriceImpactTooHigh, CodeOf(err))
}

func TestValidate_MarketRouteLiquidityLimit(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig(), testCurveParams())

	st := openState()
	st.IsOpen = false
	st.IsLaunched = true

	intent := &domain.TradeIntent{Side: domain.SideBuy, Amount: wei(10)}
	quote := &Quote{
		PriceQuote: domain.PriceQuote{
			Side:           domain.SideBuy,
			AmountOut:      tokens(1_000),
			FeeAmount:      big.NewInt(0),
			PriceImpactBps: 100,
		},
		Route: Route{
			Kind: RouteMarket,
			Market: &market.RouteQuote{
				PoolFractionBps: 4_000, // above the 30% limit
			},
		},
	}

	err := v.Validate(intent, st, quote)
	require.Error(t, err)
	assert.Equal(t, CodeInsufficientLiquidity, CodeOf(err))

	quote.Route.Market.PoolFractionBps = 500
	assert.NoError(t, v.Validate(intent, st, quote))
}

func TestValidate_MarketRouteRequiresGraduation(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig(), testCurveParams())
	intent := &domain.TradeIntent{Side: domain.SideBuy, Amount: wei(1)}

	quote := &Quote{
		PriceQuote: domain.PriceQuote{Side: domain.SideBuy, AmountOut: tokens(10), FeeAmount: big.NewInt(0)},
		Route:      Route{Kind: RouteMarket, Market: &market.RouteQuote{}},
	}
	err := v.Validate(intent, openState(), quote)
	require.Error(t, err)
	assert.Equal(t, CodeTokenNotTradeable, CodeOf(err))
}
