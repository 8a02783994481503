// internal/domain/trade.go
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TradeSide defines the direction of a trade.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// TradeIntent is a caller's request to trade a token. Amount is wei of
// native currency for buys and token base units for sells.
type TradeIntent struct {
	Side         TradeSide
	Token        common.Address
	Trader       common.Address
	Amount       *big.Int
	SlippageBps  uint32
	MinAmountOut *big.Int // optional; nil means no floor was requested
}

// PriceQuote is an ephemeral pricing answer. It is never persisted and
// carries no authority: execution revalidates against fresh state.
type PriceQuote struct {
	Side           TradeSide
	Token          common.Address
	AmountIn       *big.Int
	AmountOut      *big.Int // after fee
	FeeAmount      *big.Int
	PricePerToken  decimal.Decimal // native per whole token, display precision
	PriceImpactBps int64
	MinReceived    *big.Int
	QuotedAt       time.Time
}

// TradeResult is the terminal record of an executed trade.
type TradeResult struct {
	ID                  string
	Side                TradeSide
	Token               common.Address
	Trader              common.Address
	AmountIn            *big.Int
	AmountOut           *big.Int
	FeePaid             *big.Int
	TxHash              common.Hash
	BlockNumber         uint64
	GasUsed             uint64
	RealizedSlippageBps int64
	CompletedAt         time.Time
}

// RealizedSlippageBps computes max(0, (minOut-actualOut)/minOut) in basis
// points. Returns 0 when no minimum was requested.
func RealizedSlippageBps(minOut, actualOut *big.Int) int64 {
	if minOut == nil || minOut.Sign() <= 0 || actualOut == nil {
		return 0
	}
	if actualOut.Cmp(minOut) >= 0 {
		return 0
	}
	diff := new(big.Int).Sub(minOut, actualOut)
	diff.Mul(diff, big.NewInt(10_000))
	diff.Div(diff, minOut)
	return diff.Int64()
}
