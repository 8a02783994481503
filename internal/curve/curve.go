// internal/curve/curve.go
package curve

import (
	"errors"
	"fmt"
	"math/big"
)

// The pricer mirrors the launchpad contract's integer math exactly. All
// amounts are 1e18 fixed point: token amounts in base units, prices in wei
// per whole token. Every division floors, matching Solidity semantics, so
// quotes computed here agree bit-for-bit with the on-chain result.

var (
	ErrNonPositiveAmount   = errors.New("amount must be positive")
	ErrSaleCeilingExceeded = errors.New("trade exceeds sale ceiling")
	ErrSellExceedsSold     = errors.New("sell amount exceeds tokens sold")
)

var oneToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Params describe a stepped bonding curve:
//
//	price(sold) = BasePrice + PriceIncrement * floor(sold / StepSize)
type Params struct {
	BasePrice      *big.Int // wei per whole token on the first step
	PriceIncrement *big.Int // wei added per step
	StepSize       *big.Int // tokens per step, base units
	SaleCeiling    *big.Int // total sellable tokens, base units
}

func (p Params) validate() error {
	switch {
	case p.BasePrice == nil || p.BasePrice.Sign() <= 0:
		return errors.New("base price must be positive")
	case p.PriceIncrement == nil || p.PriceIncrement.Sign() < 0:
		return errors.New("price increment must be non-negative")
	case p.StepSize == nil || p.StepSize.Sign() <= 0:
		return errors.New("step size must be positive")
	case p.SaleCeiling == nil || p.SaleCeiling.Sign() <= 0:
		return errors.New("sale ceiling must be positive")
	}
	return nil
}

// Pricer is a pure, side-effect-free stepped-price calculator. It holds no
// mutable state and is safe for concurrent use.
type Pricer struct {
	params Params
}

func NewPricer(params Params) (*Pricer, error) {
	if err := params.validate(); err != nil {
		return nil, fmt.Errorf("invalid curve params: %w", err)
	}
	return &Pricer{params: params}, nil
}

// PriceAt returns the marginal price, in wei per whole token, for the next
// token sold after `sold` tokens.
func (c *Pricer) PriceAt(sold *big.Int) *big.Int {
	step := new(big.Int).Div(sold, c.params.StepSize)
	price := new(big.Int).Mul(step, c.params.PriceIncrement)
	return price.Add(price, c.params.BasePrice)
}

// TokensOut walks the curve forward from `sold`, consuming nativeIn at each
// step's constant price. Partial steps are consumed exactly. If the walk
// would push the cumulative sold amount past the sale ceiling the whole
// trade is rejected, never silently capped.
func (c *Pricer) TokensOut(sold, nativeIn *big.Int) (*big.Int, error) {
	if sold == nil || sold.Sign() < 0 || nativeIn == nil || nativeIn.Sign() <= 0 {
		return nil, ErrNonPositiveAmount
	}

	cur := new(big.Int).Set(sold)
	remaining := new(big.Int).Set(nativeIn)
	out := new(big.Int)

	for remaining.Sign() > 0 {
		if cur.Cmp(c.params.SaleCeiling) >= 0 {
			return nil, ErrSaleCeilingExceeded
		}

		step := new(big.Int).Div(cur, c.params.StepSize)
		price := new(big.Int).Mul(step, c.params.PriceIncrement)
		price.Add(price, c.params.BasePrice)

		// Tokens left on this step, clamped to the ceiling.
		boundary := new(big.Int).Add(step, big.NewInt(1))
		boundary.Mul(boundary, c.params.StepSize)
		if boundary.Cmp(c.params.SaleCeiling) > 0 {
			boundary.Set(c.params.SaleCeiling)
		}
		stepTokens := new(big.Int).Sub(boundary, cur)

		stepCost := new(big.Int).Mul(stepTokens, price)
		stepCost.Div(stepCost, oneToken)

		// A step residual so small its cost floors to zero is still taken
		// whole here, so the walk moves on and later tokens price at the
		// next step instead of inheriting this one's stale price.
		if remaining.Cmp(stepCost) >= 0 {
			out.Add(out, stepTokens)
			cur.Add(cur, stepTokens)
			remaining.Sub(remaining, stepCost)
			continue
		}

		// Partial step: remaining < stepCost, so floor(remaining/price)
		// stays inside this step and the input is consumed in full.
		take := new(big.Int).Mul(remaining, oneToken)
		take.Div(take, price)
		if take.Sign() == 0 {
			// Sub-unit dust cannot buy a single base unit.
			break
		}
		out.Add(out, take)
		cur.Add(cur, take)
		remaining.SetInt64(0)
	}

	if cur.Cmp(c.params.SaleCeiling) > 0 {
		return nil, ErrSaleCeilingExceeded
	}
	return out, nil
}

// NativeOut is the symmetric inverse of TokensOut: it walks backward from
// `sold`, selling tokensIn at each step's constant price. For any state s
// and input x, NativeOut(s, TokensOut(s, x)) <= x holds because both
// directions floor.
func (c *Pricer) NativeOut(sold, tokensIn *big.Int) (*big.Int, error) {
	if sold == nil || sold.Sign() < 0 || tokensIn == nil || tokensIn.Sign() <= 0 {
		return nil, ErrNonPositiveAmount
	}
	if tokensIn.Cmp(sold) > 0 {
		return nil, ErrSellExceedsSold
	}

	cur := new(big.Int).Set(sold)
	remaining := new(big.Int).Set(tokensIn)
	out := new(big.Int)
	one := big.NewInt(1)

	for remaining.Sign() > 0 {
		// Step index of the most recently sold token.
		last := new(big.Int).Sub(cur, one)
		step := last.Div(last, c.params.StepSize)

		stepStart := new(big.Int).Mul(step, c.params.StepSize)
		avail := new(big.Int).Sub(cur, stepStart)
		if avail.Cmp(remaining) > 0 {
			avail.Set(remaining)
		}

		price := new(big.Int).Mul(step, c.params.PriceIncrement)
		price.Add(price, c.params.BasePrice)

		proceeds := new(big.Int).Mul(avail, price)
		proceeds.Div(proceeds, oneToken)
		out.Add(out, proceeds)

		cur.Sub(cur, avail)
		remaining.Sub(remaining, avail)
	}

	return out, nil
}
