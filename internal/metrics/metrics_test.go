package metrics

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vmelnikov/launchcore/internal/events"
)

func TestCollectorCountsBusEvents(t *testing.T) {
	collector := NewCollector()
	bus := events.NewBus(zap.NewNop(), 16)
	subs := collector.Attach(bus)
	require.NotEmpty(t, subs)

	ctx := context.Background()
	token := common.HexToAddress("0x1111111111111111111111111111111111111111")

	require.NoError(t, bus.PublishSync(ctx, &events.TokenCreatedEvent{
		BaseEvent: events.BaseEvent{EventType: events.TokenCreated, EventTime: time.Now()},
		Token:     token,
	}))
	require.NoError(t, bus.PublishSync(ctx, &events.TokenTradedEvent{
		BaseEvent: events.BaseEvent{EventType: events.TokenTraded, EventTime: time.Now()},
		Token:     token,
		IsBuy:     true,
		AmountIn:  big.NewInt(1_000_000),
		AmountOut: big.NewInt(5_000),
	}))

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.curveEvents.WithLabelValues(string(events.TokenCreated))))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.curveEvents.WithLabelValues(string(events.TokenTraded))))
	assert.Equal(t, 1_000_000.0, testutil.ToFloat64(collector.tradeVolume.WithLabelValues("buy")))
}

func TestCollectorCountsTradeOutcomes(t *testing.T) {
	collector := NewCollector()
	bus := events.NewBus(zap.NewNop(), 16)
	collector.Attach(bus)

	ctx := context.Background()
	require.NoError(t, bus.PublishSync(ctx, events.TradeExecutedEvent{
		BaseEvent: events.BaseEvent{EventType: events.TradeExecuted, EventTime: time.Now()},
		TradeID:   "t-1",
		GasUsed:   90_000,
	}))
	require.NoError(t, bus.PublishSync(ctx, events.TradeFailedEvent{
		BaseEvent: events.BaseEvent{EventType: events.TradeFailed, EventTime: time.Now()},
		TradeID:   "t-2",
		Code:      "DEADLINE_EXCEEDED",
	}))

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.tradesTotal.WithLabelValues("confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.tradesTotal.WithLabelValues("failed")))
}

func TestCollectorCountsThreats(t *testing.T) {
	collector := NewCollector()
	bus := events.NewBus(zap.NewNop(), 16)
	collector.Attach(bus)

	require.NoError(t, bus.PublishSync(context.Background(), events.ThreatDetectedEvent{
		BaseEvent: events.BaseEvent{EventType: events.ThreatDetected, EventTime: time.Now()},
		Kind:      "abnormal_volume",
	}))

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.threatsTotal.WithLabelValues("abnormal_volume")))
}

func TestUnsubscribeStopsCollection(t *testing.T) {
	collector := NewCollector()
	bus := events.NewBus(zap.NewNop(), 16)
	subs := collector.Attach(bus)
	for _, sub := range subs {
		sub.Unsubscribe()
	}

	require.NoError(t, bus.PublishSync(context.Background(), events.TradeFailedEvent{
		BaseEvent: events.BaseEvent{EventType: events.TradeFailed, EventTime: time.Now()},
	}))

	assert.Equal(t, 0.0, testutil.ToFloat64(collector.tradesTotal.WithLabelValues("failed")))
}
