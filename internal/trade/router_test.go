package trade

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vmelnikov/launchcore/internal/chain"
	"github.com/vmelnikov/launchcore/internal/curve"
	"github.com/vmelnikov/launchcore/internal/domain"
	"github.com/vmelnikov/launchcore/internal/market"
	"github.com/vmelnikov/launchcore/internal/state"
)

var (
	testToken     = common.HexToAddress("0xabc0000000000000000000000000000000000001")
	testTrader    = common.HexToAddress("0xdef0000000000000000000000000000000000002")
	testLaunchpad = common.HexToAddress("0x1230000000000000000000000000000000000003")
	testSwapAddr  = common.HexToAddress("0x4560000000000000000000000000000000000004")
	testWNative   = common.HexToAddress("0x7890000000000000000000000000000000000005")
)

type stubReader struct {
	st *domain.TokenSaleState
}

func (r *stubReader) SaleState(ctx context.Context, token common.Address) (*domain.TokenSaleState, error) {
	return r.st.Clone(), nil
}

type stubSigner struct {
	sent []*chain.TxRequest
	hash common.Hash
	err  error
}

func (s *stubSigner) SendTransaction(ctx context.Context, req *chain.TxRequest) (common.Hash, error) {
	if s.err != nil {
		return common.Hash{}, s.err
	}
	s.sent = append(s.sent, req)
	return s.hash, nil
}

type stubReceipts struct {
	receipt *types.Receipt
}

func (s *stubReceipts) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return s.receipt, nil
}

type stubPools struct {
	pools map[common.Address][]*market.Pool
}

func (s *stubPools) PoolsFor(ctx context.Context, token common.Address) ([]*market.Pool, error) {
	return s.pools[token], nil
}

type stubRecorder struct {
	saved []*domain.TradeResult
}

func (s *stubRecorder) SaveTrade(ctx context.Context, result *domain.TradeResult) error {
	s.saved = append(s.saved, result)
	return nil
}

type stubBalances struct {
	balance *big.Int
}

func (s *stubBalances) StakedBalance(ctx context.Context, trader common.Address) (*big.Int, error) {
	return s.balance, nil
}

func successReceipt() *types.Receipt {
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(123),
		GasUsed:     90_000,
	}
}

// tradedReceiptLog builds the launchpad trade log the router recovers the
// realized output from.
func tradedReceiptLog(t *testing.T, token common.Address, isBuy bool, in, out *big.Int) *types.Log {
	t.Helper()
	data, err := chain.LaunchpadABI().Events["TokenTraded"].Inputs.NonIndexed().Pack(
		isBuy, in, out, big.NewInt(0))
	require.NoError(t, err)
	return &types.Log{
		Topics: []common.Hash{
			chain.TopicTokenTraded,
			common.BytesToHash(token.Bytes()),
			common.BytesToHash(testTrader.Bytes()),
		},
		Data: data,
	}
}

type routerFixture struct {
	router   *Router
	signer   *stubSigner
	receipts *stubReceipts
	recorder *stubRecorder
}

func newRouterFixture(t *testing.T, st *domain.TokenSaleState, mutate func(*RouterConfig, *RouterDeps)) *routerFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	pricer, err := curve.NewPricer(testCurveParams())
	require.NoError(t, err)

	receipts := &stubReceipts{receipt: successReceipt()}
	recorder := &stubRecorder{}
	cfg := RouterConfig{
		Launchpad:      testLaunchpad,
		PlatformFeeBps: 50,
		GasLimit:       300_000,
	}
	deps := RouterDeps{
		Pricer:    pricer,
		Cache:     state.NewCache(&stubReader{st: st}, time.Minute, logger),
		Validator: NewValidator(DefaultValidatorConfig(), testCurveParams()),
		Awaiter:   chain.NewAwaiter(receipts, logger, 5*time.Millisecond, time.Second),
		Recorder:  recorder,
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}

	return &routerFixture{
		router:   NewRouter(cfg, deps, logger),
		signer:   &stubSigner{hash: common.HexToHash("0xbeef")},
		receipts: receipts,
		recorder: recorder,
	}
}

func buyIntent(amount *big.Int) *domain.TradeIntent {
	return &domain.TradeIntent{
		Side:   domain.SideBuy,
		Token:  testToken,
		Trader: testTrader,
		Amount: amount,
	}
}

func TestGetQuote_FirstStepBuy(t *testing.T) {
	st := &domain.TokenSaleState{
		Address:    testToken,
		SoldAmount: big.NewInt(0),
		IsOpen:     true,
	}
	fx := newRouterFixture(t, st, nil)

	quote, err := fx.router.GetQuote(context.Background(), buyIntent(wei(1)))
	require.NoError(t, err)

	// One native on the first step buys 10000 tokens gross; the 0.5%
	// platform fee leaves 9950.
	assert.Equal(t, RouteCurve, quote.Route.Kind)
	assert.Equal(t, tokens(9_950), quote.AmountOut)
	assert.Equal(t, tokens(50), quote.FeeAmount)
	assert.Equal(t, quote.AmountOut, quote.MinReceived, "zero tolerance floors at the quoted output")
	assert.Equal(t, "0.0001", quote.PricePerToken.String())
}

func TestGetQuote_LaunchedTokenNotTradeable(t *testing.T) {
	st := &domain.TokenSaleState{
		Address:    testToken,
		SoldAmount: tokens(800_000),
		IsLaunched: true,
	}
	fx := newRouterFixture(t, st, nil)

	_, err := fx.router.GetQuote(context.Background(), buyIntent(wei(1)))
	require.Error(t, err)
	assert.Equal(t, CodeTokenNotTradeable, CodeOf(err))

	_, err = fx.router.ExecuteTrade(context.Background(), buyIntent(wei(1)), fx.signer)
	require.Error(t, err)
	assert.Equal(t, CodeTokenNotTradeable, CodeOf(err))
	assert.Empty(t, fx.signer.sent, "nothing may reach the chain")
}

func TestGetQuote_ImpactCeilingBlocksBeforeSubmission(t *testing.T) {
	st := &domain.TokenSaleState{
		Address:    testToken,
		SoldAmount: big.NewInt(0),
		IsOpen:     true,
	}
	fx := newRouterFixture(t, st, nil)

	// A 10-native buy at the curve base walks four steps: effective price
	// 0.00025 against a 0.0001 spot, far past the 15% ceiling.
	_, err := fx.router.GetQuote(context.Background(), buyIntent(wei(10)))
	require.Error(t, err)
	assert.Equal(t, CodePriceImpactTooHigh, CodeOf(err))

	_, err = fx.router.ExecuteTrade(context.Background(), buyIntent(wei(10)), fx.signer)
	require.Error(t, err)
	assert.Equal(t, CodePriceImpactTooHigh, CodeOf(err))
	assert.Empty(t, fx.signer.sent)
}

func TestExecuteTrade_CurveBuyConfirms(t *testing.T) {
	st := &domain.TokenSaleState{
		Address:    testToken,
		SoldAmount: big.NewInt(0),
		IsOpen:     true,
	}
	fx := newRouterFixture(t, st, nil)
	fx.receipts.receipt.Logs = []*types.Log{
		tradedReceiptLog(t, testToken, true, wei(1), tokens(9_950)),
	}

	result, err := fx.router.ExecuteTrade(context.Background(), buyIntent(wei(1)), fx.signer)
	require.NoError(t, err)

	require.Len(t, fx.signer.sent, 1)
	req := fx.signer.sent[0]
	assert.Equal(t, testLaunchpad, req.To)
	assert.Equal(t, wei(1), req.Value)
	assert.EqualValues(t, 300_000, req.GasLimit)
	assert.NotEmpty(t, req.Data)

	assert.Equal(t, tokens(9_950), result.AmountOut)
	assert.EqualValues(t, 123, result.BlockNumber)
	assert.EqualValues(t, 90_000, result.GasUsed)
	assert.EqualValues(t, 0, result.RealizedSlippageBps)

	require.Len(t, fx.recorder.saved, 1)
	assert.Equal(t, result.ID, fx.recorder.saved[0].ID)
}

func TestExecuteTrade_RealizedSlippageReported(t *testing.T) {
	st := &domain.TokenSaleState{
		Address:    testToken,
		SoldAmount: big.NewInt(0),
		IsOpen:     true,
	}
	fx := newRouterFixture(t, st, nil)
	// The chain delivered less than the requested floor; the trade is
	// final, so the shortfall is reported, not reversed.
	fx.receipts.receipt.Logs = []*types.Log{
		tradedReceiptLog(t, testToken, true, wei(1), tokens(9_900)),
	}

	intent := buyIntent(wei(1))
	intent.MinAmountOut = tokens(9_950)
	intent.SlippageBps = 10

	result, err := fx.router.ExecuteTrade(context.Background(), intent, fx.signer)
	require.NoError(t, err)
	assert.Equal(t, tokens(9_900), result.AmountOut)
	assert.EqualValues(t, 50, result.RealizedSlippageBps)
}

func TestExecuteTrade_RevertReported(t *testing.T) {
	st := &domain.TokenSaleState{
		Address:    testToken,
		SoldAmount: big.NewInt(0),
		IsOpen:     true,
	}
	fx := newRouterFixture(t, st, nil)
	fx.receipts.receipt.Status = types.ReceiptStatusFailed

	_, err := fx.router.ExecuteTrade(context.Background(), buyIntent(wei(1)), fx.signer)
	require.Error(t, err)
	assert.Equal(t, CodeUnknown, CodeOf(err))
	assert.Contains(t, err.Error(), "reverted")
}

func TestExecuteTrade_SendFailureClassified(t *testing.T) {
	st := &domain.TokenSaleState{
		Address:    testToken,
		SoldAmount: big.NewInt(0),
		IsOpen:     true,
	}
	fx := newRouterFixture(t, st, nil)
	fx.signer.err = errors.New("insufficient funds for gas * price + value")

	_, err := fx.router.ExecuteTrade(context.Background(), buyIntent(wei(1)), fx.signer)
	require.Error(t, err)
	assert.Equal(t, CodeInsufficientBalance, CodeOf(err))
}

func TestExecuteTrade_MarketRouteAfterGraduation(t *testing.T) {
	st := &domain.TokenSaleState{
		Address:    testToken,
		SoldAmount: tokens(800_000),
		IsLaunched: true,
	}
	pools := &stubPools{pools: map[common.Address][]*market.Pool{
		testToken: {{
			Address:  common.HexToAddress("0x11"),
			Token0:   testWNative,
			Token1:   testToken,
			Reserve0: wei(500),
			Reserve1: tokens(1_000_000),
			FeeBps:   30,
		}},
	}}
	fx := newRouterFixture(t, st, func(cfg *RouterConfig, deps *RouterDeps) {
		cfg.SwapRouter = testSwapAddr
		deps.Quoter = market.NewQuoter(pools, testWNative, zaptest.NewLogger(t))
	})

	quote, err := fx.router.GetQuote(context.Background(), buyIntent(wei(1)))
	require.NoError(t, err)
	assert.Equal(t, RouteMarket, quote.Route.Kind)
	assert.Equal(t, 1, quote.AmountOut.Sign())

	result, err := fx.router.ExecuteTrade(context.Background(), buyIntent(wei(1)), fx.signer)
	require.NoError(t, err)

	require.Len(t, fx.signer.sent, 1)
	assert.Equal(t, testSwapAddr, fx.signer.sent[0].To)
	assert.Equal(t, wei(1), fx.signer.sent[0].Value)
	// No trade log on a market swap; the quoted output stands in.
	assert.Equal(t, quote.AmountOut, result.AmountOut)
}

func TestGetQuote_GraduatedWithoutQuoterRejected(t *testing.T) {
	st := &domain.TokenSaleState{
		Address:    testToken,
		SoldAmount: tokens(800_000),
		IsLaunched: true,
	}
	fx := newRouterFixture(t, st, nil)

	_, err := fx.router.GetQuote(context.Background(), buyIntent(wei(1)))
	require.Error(t, err)
	assert.Equal(t, CodeTokenNotTradeable, CodeOf(err))
}

func TestGetQuote_FeeTierDiscountApplied(t *testing.T) {
	st := &domain.TokenSaleState{
		Address:    testToken,
		SoldAmount: big.NewInt(0),
		IsOpen:     true,
	}
	fx := newRouterFixture(t, st, func(cfg *RouterConfig, deps *RouterDeps) {
		resolver, err := NewFeeTierResolver(testTiers())
		require.NoError(t, err)
		deps.Fees = resolver
		deps.Balances = &stubBalances{balance: tokens(10_000)}
	})

	quote, err := fx.router.GetQuote(context.Background(), buyIntent(wei(1)))
	require.NoError(t, err)

	// Silver tier: 10 bps off the 50 bps platform fee.
	assert.Equal(t, tokens(40), quote.FeeAmount)
	assert.Equal(t, tokens(9_960), quote.AmountOut)
}

func TestGetQuote_SellOnCurve(t *testing.T) {
	st := &domain.TokenSaleState{
		Address:    testToken,
		SoldAmount: tokens(15_000),
		IsOpen:     true,
	}
	fx := newRouterFixture(t, st, nil)

	intent := &domain.TradeIntent{
		Side:   domain.SideSell,
		Token:  testToken,
		Trader: testTrader,
		Amount: tokens(2_000),
	}
	quote, err := fx.router.GetQuote(context.Background(), intent)
	require.NoError(t, err)

	// 2000 tokens all inside the second step sell at 0.0002 each: 0.4
	// native gross, 0.5% fee on the native leg.
	gross := new(big.Int).Div(wei(2), big.NewInt(5))
	expectedFee := new(big.Int).Div(new(big.Int).Mul(gross, big.NewInt(50)), big.NewInt(10_000))
	assert.Equal(t, expectedFee, quote.FeeAmount)
	assert.Equal(t, new(big.Int).Sub(gross, expectedFee), quote.AmountOut)
	assert.Equal(t, RouteCurve, quote.Route.Kind)
}
