// internal/metrics/metrics.go
package metrics

import (
	"context"
	"math/big"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vmelnikov/launchcore/internal/events"
)

// Collector owns the trading core's Prometheus metrics. All metrics live
// in a private registry so tests can build isolated collectors.
type Collector struct {
	registry *prometheus.Registry

	tradesTotal     *prometheus.CounterVec
	tradeVolume     *prometheus.CounterVec
	curveEvents     *prometheus.CounterVec
	threatsTotal    *prometheus.CounterVec
	gasUsed         prometheus.Histogram
	realizedSlipBps prometheus.Histogram
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		tradesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "launchcore",
				Name:      "trades_total",
				Help:      "Total number of trade executions by outcome",
			},
			[]string{"status"},
		),
		tradeVolume: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "launchcore",
				Name:      "trade_volume_wei_total",
				Help:      "Cumulative native volume of confirmed trades",
			},
			[]string{"side"},
		),
		curveEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "launchcore",
				Name:      "chain_events_total",
				Help:      "Ingested chain events by type",
			},
			[]string{"type"},
		),
		threatsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "launchcore",
				Name:      "threats_total",
				Help:      "Advisory threat findings by kind",
			},
			[]string{"kind"},
		),
		gasUsed: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "launchcore",
				Name:      "trade_gas_used",
				Help:      "Gas used per confirmed trade",
				Buckets:   prometheus.ExponentialBuckets(21_000, 2, 8),
			},
		),
		realizedSlipBps: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "launchcore",
				Name:      "realized_slippage_bps",
				Help:      "Realized slippage of confirmed trades in basis points",
				Buckets:   []float64{0, 10, 25, 50, 100, 250, 500, 1000},
			},
		),
	}

	c.registry.MustRegister(
		c.tradesTotal,
		c.tradeVolume,
		c.curveEvents,
		c.threatsTotal,
		c.gasUsed,
		c.realizedSlipBps,
	)
	return c
}

// Registry exposes the underlying registry for an HTTP scrape handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordTradeExecuted counts a confirmed trade and its observed costs.
func (c *Collector) RecordTradeExecuted(ev events.TradeExecutedEvent) {
	c.tradesTotal.WithLabelValues("confirmed").Inc()
	c.gasUsed.Observe(float64(ev.GasUsed))
	c.realizedSlipBps.Observe(float64(ev.RealizedSlippageBps))
}

// RecordTradeFailed counts a failed execution by error code.
func (c *Collector) RecordTradeFailed() {
	c.tradesTotal.WithLabelValues("failed").Inc()
}

// recordCurveVolume accumulates the native leg of a curve trade. Float
// rounding is acceptable at metric precision.
func (c *Collector) recordCurveVolume(ev *events.TokenTradedEvent) {
	side := "sell"
	amount := ev.AmountOut
	if ev.IsBuy {
		side = "buy"
		amount = ev.AmountIn
	}
	if amount == nil {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	c.tradeVolume.WithLabelValues(side).Add(value)
}

// RecordChainEvent counts one ingested chain event.
func (c *Collector) RecordChainEvent(eventType events.EventType) {
	c.curveEvents.WithLabelValues(string(eventType)).Inc()
}

// RecordThreat counts an advisory threat finding.
func (c *Collector) RecordThreat(kind string) {
	c.threatsTotal.WithLabelValues(kind).Inc()
}

// Attach subscribes the collector to the event bus. The returned
// subscriptions stop metric collection when unsubscribed.
func (c *Collector) Attach(bus *events.Bus) []events.Subscription {
	subs := make([]events.Subscription, 0, 6)

	for _, eventType := range []events.EventType{
		events.TokenCreated,
		events.TokenTraded,
		events.TokenLaunched,
	} {
		et := eventType
		subs = append(subs, bus.SubscribeFunc(et, func(_ context.Context, ev events.Event) error {
			c.RecordChainEvent(et)
			if traded, ok := ev.(*events.TokenTradedEvent); ok {
				c.recordCurveVolume(traded)
			}
			return nil
		}))
	}

	subs = append(subs, bus.SubscribeFunc(events.TradeExecuted, func(_ context.Context, ev events.Event) error {
		if executed, ok := ev.(events.TradeExecutedEvent); ok {
			c.RecordTradeExecuted(executed)
		}
		return nil
	}))

	subs = append(subs, bus.SubscribeFunc(events.TradeFailed, func(_ context.Context, ev events.Event) error {
		if _, ok := ev.(events.TradeFailedEvent); ok {
			c.RecordTradeFailed()
		}
		return nil
	}))

	subs = append(subs, bus.SubscribeFunc(events.ThreatDetected, func(_ context.Context, ev events.Event) error {
		if threat, ok := ev.(events.ThreatDetectedEvent); ok {
			c.RecordThreat(threat.Kind)
		}
		return nil
	}))

	return subs
}
