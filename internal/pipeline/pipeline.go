// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/vmelnikov/launchcore/internal/chain"
	"github.com/vmelnikov/launchcore/internal/events"
	"github.com/vmelnikov/launchcore/internal/state"
)

// State is the pipeline connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateStreaming
	StatePolling
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StatePolling:
		return "polling"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Config tunes the ingestion pipeline.
type Config struct {
	PollInterval time.Duration // fixed polling tick, default 15s
	BufferSize   int           // WS delivery buffer, default 256
	DedupeSize   int           // bounded dedupe window
	StartBlock   uint64        // resume point; 0 starts at current head
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.PollInterval <= 0 {
		out.PollInterval = 15 * time.Second
	}
	if out.BufferSize <= 0 {
		out.BufferSize = 256
	}
	return out
}

// Pipeline ingests launchpad events through a hybrid push/poll strategy:
// WebSocket streaming when available, range-query polling otherwise. Both
// modes share one watermark and resume from lastProcessedBlock+1, so
// delivery is at-least-once and consumers dedupe by (txHash, logIndex).
type Pipeline struct {
	source    chain.LogSource
	launchpad common.Address
	cache     *state.Cache
	bus       *events.Bus
	logger    *zap.Logger
	cfg       Config

	connState    atomic.Int32
	tickInFlight atomic.Bool
	dedupe       *Dedupe

	wmMu      sync.Mutex
	watermark uint64 // highest fully processed block

	cancel context.CancelFunc
	done   chan struct{}
}

// Event topics polled per tick; the watermark only advances when the range
// query for every one of them succeeds.
var eventTopics = []common.Hash{
	chain.TopicTokenCreated,
	chain.TopicTokenTraded,
	chain.TopicTokenLaunched,
}

func New(source chain.LogSource, launchpad common.Address, cache *state.Cache, bus *events.Bus, cfg Config, logger *zap.Logger) *Pipeline {
	cfg = cfg.withDefaults()
	p := &Pipeline{
		source:    source,
		launchpad: launchpad,
		cache:     cache,
		bus:       bus,
		logger:    logger.Named("pipeline"),
		cfg:       cfg,
		dedupe:    NewDedupe(cfg.DedupeSize),
		done:      make(chan struct{}),
	}
	p.watermark = cfg.StartBlock
	p.connState.Store(int32(StateDisconnected))
	return p
}

// ConnState returns the current connection state.
func (p *Pipeline) ConnState() State {
	return State(p.connState.Load())
}

func (p *Pipeline) setState(s State) {
	prev := State(p.connState.Swap(int32(s)))
	if prev != s {
		p.logger.Info("Pipeline state changed",
			zap.String("from", prev.String()),
			zap.String("to", s.String()))
	}
}

// Watermark returns lastProcessedBlock.
func (p *Pipeline) Watermark() uint64 {
	p.wmMu.Lock()
	defer p.wmMu.Unlock()
	return p.watermark
}

func (p *Pipeline) advanceWatermark(block uint64) {
	p.wmMu.Lock()
	if block > p.watermark {
		p.watermark = block
	}
	p.wmMu.Unlock()
}

// Start launches the ingestion loop. If no start block was configured the
// watermark is initialized to the current head.
func (p *Pipeline) Start(ctx context.Context) error {
	if p.cfg.StartBlock == 0 {
		head, err := p.source.HeadBlock(ctx)
		if err != nil {
			return fmt.Errorf("failed to read head block: %w", err)
		}
		p.advanceWatermark(head)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	go p.run(runCtx)
	return nil
}

// Stop shuts the pipeline down. Terminal: a stopped pipeline is not
// restartable.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

// A stream session at least this old proves the endpoint healthy again, so
// the next drop reconnects from the initial interval instead of inheriting
// backoff accumulated during an earlier flapping phase.
const healthySessionAge = 5 * time.Minute

func newStreamBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0 // never give up on WS reattempts
	return bo
}

func maybeResetBackoff(bo *backoff.ExponentialBackOff, session time.Duration) {
	if session >= healthySessionAge {
		bo.Reset()
	}
}

func (p *Pipeline) run(ctx context.Context) {
	defer close(p.done)
	defer p.setState(StateShutdown)

	bo := newStreamBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		p.setState(StateConnecting)
		started := time.Now()
		err := p.stream(ctx)
		if ctx.Err() != nil {
			return
		}
		maybeResetBackoff(bo, time.Since(started))

		wait := bo.NextBackOff()
		p.logger.Warn("WebSocket stream ended, falling back to polling",
			zap.Error(err),
			zap.Duration("ws_retry_in", wait))

		p.setState(StatePolling)
		if p.pollFor(ctx, wait) {
			return
		}
	}
}

// stream opens the push subscription, closes the watermark gap with one
// range query, then consumes logs until the subscription errors out.
func (p *Pipeline) stream(ctx context.Context) error {
	ch := make(chan types.Log, p.cfg.BufferSize)
	sub, err := p.source.SubscribeLogs(ctx, p.filterQuery(nil, nil, nil), ch)
	if err != nil {
		return fmt.Errorf("log subscription failed: %w", err)
	}
	defer sub.Unsubscribe()

	// Backfill [watermark+1, head] so the stream picks up with no gap.
	// Duplicates across the boundary are handled by the dedupe window.
	if err := p.pollOnce(ctx); err != nil {
		p.logger.Warn("Backfill on stream start failed", zap.Error(err))
	}

	p.setState(StateStreaming)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case lg := <-ch:
			p.handleLog(lg)
			// The stream can drop with more logs of this block still
			// undelivered, so the block only counts as fully processed
			// once a later one arrives. Re-polling the boundary block
			// after a drop is absorbed by the dedupe window.
			if lg.BlockNumber > 0 {
				p.advanceWatermark(lg.BlockNumber - 1)
			}
		}
	}
}

// pollFor runs polling ticks until the WS reattempt delay elapses.
// Returns true when the context was cancelled.
func (p *Pipeline) pollFor(ctx context.Context, wsRetryIn time.Duration) bool {
	if err := p.pollOnce(ctx); err != nil {
		p.logger.Warn("Polling tick failed", zap.Error(err))
	}

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	retry := time.After(wsRetryIn)

	for {
		select {
		case <-ctx.Done():
			return true
		case <-retry:
			return false
		case <-ticker.C:
			if err := p.pollOnce(ctx); err != nil {
				// Logged and retried next tick; the watermark stays put and
				// quote consumers keep seeing possibly-stale cached state.
				p.logger.Warn("Polling tick failed", zap.Error(err))
			}
		}
	}
}

// pollOnce queries [watermark+1, head] once per event type. The watermark
// advances only when every query succeeds; partial success reprocesses the
// same range next tick. A tick never overlaps a still-running one.
func (p *Pipeline) pollOnce(ctx context.Context) error {
	if !p.tickInFlight.CompareAndSwap(false, true) {
		p.logger.Debug("Skipping polling tick, previous still in flight")
		return nil
	}
	defer p.tickInFlight.Store(false)

	head, err := p.source.HeadBlock(ctx)
	if err != nil {
		return fmt.Errorf("head block query failed: %w", err)
	}

	from := p.Watermark() + 1
	if from > head {
		return nil
	}

	var collected []types.Log
	for _, topic := range eventTopics {
		logs, err := p.source.FilterLogs(ctx, p.filterQuery(
			new(big.Int).SetUint64(from),
			new(big.Int).SetUint64(head),
			[]common.Hash{topic},
		))
		if err != nil {
			return fmt.Errorf("range query [%d,%d] failed for topic %s: %w",
				from, head, topic.Hex(), err)
		}
		collected = append(collected, logs...)
	}

	sort.Slice(collected, func(i, j int) bool {
		if collected[i].BlockNumber != collected[j].BlockNumber {
			return collected[i].BlockNumber < collected[j].BlockNumber
		}
		return collected[i].Index < collected[j].Index
	})
	for _, lg := range collected {
		p.handleLog(lg)
	}

	p.advanceWatermark(head)
	return nil
}

func (p *Pipeline) filterQuery(from, to *big.Int, topics []common.Hash) ethereum.FilterQuery {
	q := ethereum.FilterQuery{
		Addresses: []common.Address{p.launchpad},
		FromBlock: from,
		ToBlock:   to,
	}
	if topics != nil {
		q.Topics = [][]common.Hash{topics}
	} else {
		q.Topics = [][]common.Hash{eventTopics}
	}
	return q
}

// handleLog decodes one launchpad log, invalidates the affected token's
// cache entry, then publishes the domain event. Invalidation happens first
// so handlers always observe fresh state.
func (p *Pipeline) handleLog(lg types.Log) {
	if lg.Removed {
		return
	}
	if p.dedupe.Contains(lg.TxHash, lg.Index) {
		p.logger.Debug("Duplicate log dropped",
			zap.String("tx_hash", lg.TxHash.Hex()),
			zap.Uint("log_index", lg.Index))
		return
	}

	event, token, err := decodeLog(lg)
	if err != nil {
		// A log that cannot decode never will; record it so range replays
		// do not spin on it.
		p.dedupe.Mark(lg.TxHash, lg.Index)
		p.logger.Warn("Failed to decode log",
			zap.String("tx_hash", lg.TxHash.Hex()),
			zap.Error(err))
		return
	}

	p.cache.Invalidate(token)

	if err := p.bus.Publish(event); err != nil {
		// Left unrecorded: a replay of the same range gets another chance
		// to deliver the event.
		p.logger.Warn("Failed to publish event",
			zap.String("event_type", string(event.Type())),
			zap.Error(err))
		return
	}
	p.dedupe.Mark(lg.TxHash, lg.Index)
}
