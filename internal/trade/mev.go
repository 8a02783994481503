// internal/trade/mev.go
package trade

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/vmelnikov/launchcore/internal/domain"
	"github.com/vmelnikov/launchcore/internal/events"
)

// Threat kinds reported by the screen.
const (
	ThreatAbnormalVolume = "abnormal_volume"
	ThreatWideSpread     = "wide_spread"
)

// Threat is one advisory finding. The screen never blocks execution: this
// core holds no cancellation authority over the external signer, so a hard
// block would be unenforceable.
type Threat struct {
	Kind        string
	Description string
}

// ScreenConfig tunes the heuristics. A zero VolumeThreshold or
// MaxSpreadBps disables that check.
type ScreenConfig struct {
	Window          time.Duration
	VolumeThreshold *big.Int // summed native-side volume per token per window
	MaxSpreadBps    int64    // spot vs execution price spread
}

func DefaultScreenConfig() ScreenConfig {
	return ScreenConfig{
		Window:          10 * time.Second,
		VolumeThreshold: new(big.Int).Mul(big.NewInt(50), big.NewInt(1e18)),
		MaxSpreadBps:    1_000,
	}
}

type observation struct {
	at     time.Time
	amount *big.Int
}

// Screen watches per-token trade flow for sandwich-shaped activity:
// abnormal concurrent same-token volume and wide spot/execution spreads.
type Screen struct {
	cfg    ScreenConfig
	bus    *events.Bus
	logger *zap.Logger

	mu      sync.Mutex
	byToken map[common.Address][]observation

	clock func() time.Time
}

func NewScreen(cfg ScreenConfig, bus *events.Bus, logger *zap.Logger) *Screen {
	if cfg.Window <= 0 {
		cfg.Window = DefaultScreenConfig().Window
	}
	return &Screen{
		cfg:     cfg,
		bus:     bus,
		logger:  logger.Named("threat-screen"),
		byToken: make(map[common.Address][]observation),
		clock:   time.Now,
	}
}

// Check records the trade into the sliding window and reports findings.
// Always returns; never errors, never blocks the caller's trade.
func (s *Screen) Check(token common.Address, q *Quote) []Threat {
	volume := s.record(token, q)

	var threats []Threat

	if s.cfg.VolumeThreshold != nil && s.cfg.VolumeThreshold.Sign() > 0 &&
		volume.Cmp(s.cfg.VolumeThreshold) > 0 {
		threats = append(threats, Threat{
			Kind: ThreatAbnormalVolume,
			Description: fmt.Sprintf("native volume %s in %s exceeds %s",
				volume, s.cfg.Window, s.cfg.VolumeThreshold),
		})
	}

	if s.cfg.MaxSpreadBps > 0 && q.PriceImpactBps > s.cfg.MaxSpreadBps {
		threats = append(threats, Threat{
			Kind: ThreatWideSpread,
			Description: fmt.Sprintf("execution price %d bps off spot, threshold %d",
				q.PriceImpactBps, s.cfg.MaxSpreadBps),
		})
	}

	for _, t := range threats {
		s.logger.Warn("Threat detected",
			zap.String("token", token.Hex()),
			zap.String("kind", t.Kind),
			zap.String("description", t.Description))
		if s.bus != nil {
			s.bus.Publish(events.ThreatDetectedEvent{
				BaseEvent: events.BaseEvent{
					EventType: events.ThreatDetected,
					EventTime: s.clock(),
				},
				Token:       token,
				Kind:        t.Kind,
				Description: t.Description,
			})
		}
	}
	return threats
}

// record adds the trade's native-side amount to the token's window and
// returns the pruned window sum.
func (s *Screen) record(token common.Address, q *Quote) *big.Int {
	// Sum volume on the native leg so buys and sells are comparable.
	native := q.AmountIn
	if q.Side == domain.SideSell {
		native = q.AmountOut
	}

	now := s.clock()
	cutoff := now.Add(-s.cfg.Window)

	s.mu.Lock()
	defer s.mu.Unlock()

	window := s.byToken[token]
	kept := window[:0]
	sum := new(big.Int)
	for _, obs := range window {
		if obs.at.Before(cutoff) {
			continue
		}
		kept = append(kept, obs)
		sum.Add(sum, obs.amount)
	}
	kept = append(kept, observation{at: now, amount: new(big.Int).Set(native)})
	sum.Add(sum, native)
	s.byToken[token] = kept

	return sum
}
