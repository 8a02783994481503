package engine

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vmelnikov/launchcore/internal/domain"
	"github.com/vmelnikov/launchcore/internal/events"
	"github.com/vmelnikov/launchcore/internal/export"
	"github.com/vmelnikov/launchcore/internal/state"
	"github.com/vmelnikov/launchcore/internal/storage/models"
)

var engineToken = common.HexToAddress("0xabc0000000000000000000000000000000000001")

type stubReader struct {
	st    *domain.TokenSaleState
	calls int
}

func (r *stubReader) SaleState(ctx context.Context, token common.Address) (*domain.TokenSaleState, error) {
	r.calls++
	return r.st.Clone(), nil
}

type memoryStore struct {
	tokens  []*domain.TokenSaleState
	threats []*models.Threat
	trades  []*models.Trade
}

func (m *memoryStore) SaveTrade(ctx context.Context, result *domain.TradeResult) error {
	m.trades = append(m.trades, models.TradeFromResult(result))
	return nil
}
func (m *memoryStore) GetTrade(ctx context.Context, txHash string) (*models.Trade, error) {
	return nil, nil
}
func (m *memoryStore) ListTrades(ctx context.Context, trader string, limit, offset int) ([]*models.Trade, error) {
	var out []*models.Trade
	for _, trade := range m.trades {
		if trade.Trader == trader {
			out = append(out, trade)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
func (m *memoryStore) UpsertToken(ctx context.Context, st *domain.TokenSaleState) error {
	m.tokens = append(m.tokens, st)
	return nil
}
func (m *memoryStore) GetToken(ctx context.Context, address string) (*models.Token, error) {
	return nil, nil
}
func (m *memoryStore) ListLaunchedTokens(ctx context.Context, limit, offset int) ([]*models.Token, error) {
	return nil, nil
}
func (m *memoryStore) SaveThreat(ctx context.Context, threat *models.Threat) error {
	m.threats = append(m.threats, threat)
	return nil
}
func (m *memoryStore) RunMigrations() error { return nil }
func (m *memoryStore) Close() error         { return nil }

func newTestEngine(t *testing.T) (*Engine, *memoryStore, *stubReader) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	reader := &stubReader{st: &domain.TokenSaleState{
		Address:    engineToken,
		SoldAmount: big.NewInt(0),
		IsOpen:     true,
	}}
	store := &memoryStore{}
	eng := New(Deps{
		Cache: state.NewCache(reader, time.Minute, logger),
		Bus:   events.NewBus(logger, 16),
		Store: store,
	}, logger)
	return eng, store, reader
}

func TestEngine_GetTokenStateUsesCache(t *testing.T) {
	eng, _, reader := newTestEngine(t)

	st, err := eng.GetTokenState(context.Background(), engineToken)
	require.NoError(t, err)
	assert.True(t, st.IsOpen)

	_, err = eng.GetTokenState(context.Background(), engineToken)
	require.NoError(t, err)
	assert.Equal(t, 1, reader.calls, "second read within TTL hits the cache")
}

func TestEngine_PersistsTokenEvents(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	require.NoError(t, eng.Start(context.Background()))

	err := eng.deps.Bus.PublishSync(context.Background(), &events.TokenTradedEvent{
		BaseEvent: events.BaseEvent{EventType: events.TokenTraded, EventTime: time.Now()},
		Token:     engineToken,
	})
	require.NoError(t, err)

	require.Len(t, store.tokens, 1)
	assert.Equal(t, engineToken, store.tokens[0].Address)
}

func TestEngine_PersistsThreatFindings(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	require.NoError(t, eng.Start(context.Background()))

	err := eng.deps.Bus.PublishSync(context.Background(), events.ThreatDetectedEvent{
		BaseEvent:   events.BaseEvent{EventType: events.ThreatDetected, EventTime: time.Now()},
		Token:       engineToken,
		Kind:        "abnormal_volume",
		Description: "volume spike",
	})
	require.NoError(t, err)

	require.Len(t, store.threats, 1)
	assert.Equal(t, "abnormal_volume", store.threats[0].Kind)
}

func TestEngine_SubscribeReceivesEvents(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	var got events.Event
	sub := eng.SubscribeFunc(events.TokenLaunched, func(ctx context.Context, ev events.Event) error {
		got = ev
		return nil
	})
	defer sub.Unsubscribe()

	err := eng.deps.Bus.PublishSync(context.Background(), &events.TokenLaunchedEvent{
		BaseEvent: events.BaseEvent{EventType: events.TokenLaunched, EventTime: time.Now()},
		Token:     engineToken,
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, events.TokenLaunched, got.Type())
}

func TestEngine_ExportTradeHistory(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	trader := common.HexToAddress("0xabc0000000000000000000000000000000000002")

	require.NoError(t, store.SaveTrade(context.Background(), &domain.TradeResult{
		ID:          "t-1",
		Side:        domain.SideBuy,
		Token:       engineToken,
		Trader:      trader,
		AmountIn:    big.NewInt(1_000_000),
		AmountOut:   big.NewInt(9_950),
		FeePaid:     big.NewInt(50),
		TxHash:      common.HexToHash("0x01"),
		CompletedAt: time.Now(),
	}))

	path, err := eng.ExportTradeHistory(context.Background(), trader, export.Options{
		Format:    export.FormatCSV,
		OutputDir: t.TempDir(),
	})
	require.NoError(t, err)
	assert.FileExists(t, path)

	// Unknown trader has no rows to export.
	_, err = eng.ExportTradeHistory(context.Background(), engineToken, export.Options{
		Format:    export.FormatCSV,
		OutputDir: t.TempDir(),
	})
	require.Error(t, err)
}

func TestEngine_StopShutsDownCleanly(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	require.NoError(t, eng.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, eng.Stop(ctx))
}
