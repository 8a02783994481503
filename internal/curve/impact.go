// internal/curve/impact.go
package curve

import (
	"errors"
	"math/big"
)

// DefaultProbeAmount is the fixed small trade (0.001 native) used as a spot
// price proxy when measuring price impact. Near the sale cap the probe
// itself moves across steps and the proxy degrades; the contract uses the
// same probe, so we keep parity rather than switch to the marginal price.
var DefaultProbeAmount = new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil)

// SpotPrice estimates the current execution price, in wei per whole token,
// by pricing a fixed probe trade against the curve. Falls back to the
// marginal step price when the probe no longer fits under the ceiling.
func (c *Pricer) SpotPrice(sold *big.Int) (*big.Int, error) {
	probeOut, err := c.TokensOut(sold, DefaultProbeAmount)
	if err != nil {
		if errors.Is(err, ErrSaleCeilingExceeded) {
			return c.PriceAt(sold), nil
		}
		return nil, err
	}
	if probeOut.Sign() == 0 {
		return c.PriceAt(sold), nil
	}
	spot := new(big.Int).Mul(DefaultProbeAmount, oneToken)
	return spot.Div(spot, probeOut), nil
}

// BuyImpactBps measures how far the effective price of a buy deviates from
// the spot price, in basis points. tokensOut must be the pre-fee curve
// output for nativeIn.
func (c *Pricer) BuyImpactBps(sold, nativeIn, tokensOut *big.Int) (int64, error) {
	if tokensOut == nil || tokensOut.Sign() <= 0 {
		return 0, ErrNonPositiveAmount
	}
	spot, err := c.SpotPrice(sold)
	if err != nil {
		return 0, err
	}
	if spot.Sign() == 0 {
		return 0, nil
	}
	effective := new(big.Int).Mul(nativeIn, oneToken)
	effective.Div(effective, tokensOut)

	if effective.Cmp(spot) <= 0 {
		return 0, nil
	}
	diff := new(big.Int).Sub(effective, spot)
	diff.Mul(diff, big.NewInt(10_000))
	diff.Div(diff, spot)
	return diff.Int64(), nil
}

// SellImpactBps is the sell-side counterpart: deviation of the effective
// sale price below spot, in basis points.
func (c *Pricer) SellImpactBps(sold, tokensIn, nativeOut *big.Int) (int64, error) {
	if tokensIn == nil || tokensIn.Sign() <= 0 {
		return 0, ErrNonPositiveAmount
	}
	spot, err := c.SpotPrice(sold)
	if err != nil {
		return 0, err
	}
	if spot.Sign() == 0 {
		return 0, nil
	}
	effective := new(big.Int).Mul(nativeOut, oneToken)
	effective.Div(effective, tokensIn)

	if effective.Cmp(spot) >= 0 {
		return 0, nil
	}
	diff := new(big.Int).Sub(spot, effective)
	diff.Mul(diff, big.NewInt(10_000))
	diff.Div(diff, spot)
	return diff.Int64(), nil
}

// ApplyFeeBps deducts a basis-point platform fee from the output leg. The
// curve itself is fee-agnostic; fees are applied strictly after curve math.
func ApplyFeeBps(amount *big.Int, feeBps uint32) (net, fee *big.Int) {
	fee = new(big.Int).Mul(amount, big.NewInt(int64(feeBps)))
	fee.Div(fee, big.NewInt(10_000))
	net = new(big.Int).Sub(amount, fee)
	return net, fee
}
