// internal/market/amm.go
package market

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Pool is a constant-product liquidity pool snapshot.
type Pool struct {
	Address  common.Address
	Token0   common.Address
	Token1   common.Address
	Reserve0 *big.Int
	Reserve1 *big.Int
	FeeBps   uint32
}

// ReservesFor orients the pool for a swap spending tokenIn. Reports false
// when the pool does not contain the token.
func (p *Pool) ReservesFor(tokenIn common.Address) (reserveIn, reserveOut *big.Int, ok bool) {
	switch tokenIn {
	case p.Token0:
		return p.Reserve0, p.Reserve1, true
	case p.Token1:
		return p.Reserve1, p.Reserve0, true
	default:
		return nil, nil, false
	}
}

// Other returns the pool's counterpart to the given token.
func (p *Pool) Other(token common.Address) common.Address {
	if token == p.Token0 {
		return p.Token1
	}
	return p.Token0
}

// AmountOut prices an exact-input swap against x*y=k reserves, with the
// fee taken on the input leg:
//
//	out = reserveOut * amountInAfterFee / (reserveIn + amountInAfterFee)
func AmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps uint32) *big.Int {
	if amountIn == nil || amountIn.Sign() <= 0 ||
		reserveIn == nil || reserveIn.Sign() <= 0 ||
		reserveOut == nil || reserveOut.Sign() <= 0 {
		return new(big.Int)
	}
	inAfterFee := new(big.Int).Mul(amountIn, big.NewInt(int64(10_000-feeBps)))
	numerator := new(big.Int).Mul(reserveOut, inAfterFee)
	denominator := new(big.Int).Mul(reserveIn, big.NewInt(10_000))
	denominator.Add(denominator, inAfterFee)
	return numerator.Div(numerator, denominator)
}

// ImpactBps measures how far an executed swap deviates from the reserve
// spot price, in basis points.
func ImpactBps(amountIn, amountOut, reserveIn, reserveOut *big.Int) int64 {
	if amountOut == nil || amountOut.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return 0
	}
	// spot = reserveOut/reserveIn; effective = amountOut/amountIn.
	// impact = (spot - effective) / spot = 1 - (out*rIn)/(in*rOut)
	num := new(big.Int).Mul(amountOut, reserveIn)
	num.Mul(num, big.NewInt(10_000))
	den := new(big.Int).Mul(amountIn, reserveOut)
	if den.Sign() == 0 {
		return 0
	}
	ratio := num.Div(num, den).Int64()
	if ratio >= 10_000 {
		return 0
	}
	return 10_000 - ratio
}
