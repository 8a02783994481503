// internal/trade/fees.go
package trade

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// FeeTier is one row of the externally supplied discount table.
type FeeTier struct {
	Name        string
	MinBalance  *big.Int // staked balance threshold, base units
	DiscountBps uint32   // deducted from the platform fee
}

// BaseTier is returned when no threshold is met.
var BaseTier = FeeTier{Name: "base", MinBalance: big.NewInt(0), DiscountBps: 0}

// BalanceSource supplies a trader's staked balance. Staking itself lives
// outside this core.
type BalanceSource interface {
	StakedBalance(ctx context.Context, trader common.Address) (*big.Int, error)
}

// FeeTierResolver maps a staked balance to a fee discount. The table is
// external data loaded at construction, not embedded logic.
type FeeTierResolver struct {
	tiers []FeeTier // ascending by MinBalance
}

func NewFeeTierResolver(tiers []FeeTier) (*FeeTierResolver, error) {
	sorted := make([]FeeTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinBalance.Cmp(sorted[j].MinBalance) < 0
	})
	for i, t := range sorted {
		if t.MinBalance == nil || t.MinBalance.Sign() <= 0 {
			return nil, fmt.Errorf("tier %q must have a positive balance threshold", t.Name)
		}
		if t.DiscountBps > 10_000 {
			return nil, fmt.Errorf("tier %q discount %d bps exceeds 100%%", t.Name, t.DiscountBps)
		}
		if i > 0 && t.DiscountBps < sorted[i-1].DiscountBps {
			return nil, fmt.Errorf("tier %q discount decreases against %q", t.Name, sorted[i-1].Name)
		}
	}
	return &FeeTierResolver{tiers: sorted}, nil
}

// Resolve returns the highest tier whose threshold the balance meets, or
// the base tier. A nil balance resolves to base.
func (r *FeeTierResolver) Resolve(balance *big.Int) FeeTier {
	tier := BaseTier
	if balance == nil {
		return tier
	}
	for _, t := range r.tiers {
		if balance.Cmp(t.MinBalance) < 0 {
			break
		}
		tier = t
	}
	return tier
}

// EffectiveFeeBps applies a tier discount to the platform fee, floored at
// zero.
func EffectiveFeeBps(platformBps uint32, tier FeeTier) uint32 {
	if tier.DiscountBps >= platformBps {
		return 0
	}
	return platformBps - tier.DiscountBps
}
