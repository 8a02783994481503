// internal/domain/token.go
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TokenSaleState is a point-in-time snapshot of a token's on-chain sale.
// SoldAmount is monotonically non-decreasing while the sale is open;
// IsLaunched is a one-way terminal transition that forces IsOpen=false.
type TokenSaleState struct {
	Address      common.Address
	Creator      common.Address
	Name         string
	Symbol       string
	SoldAmount   *big.Int // token base units, 1e18
	RaisedAmount *big.Int // wei
	IsOpen       bool
	IsLaunched   bool
	CreatedAt    time.Time
	LaunchedAt   time.Time

	// Stale is set when the snapshot was served from last-known-good
	// data after a failed refresh. Never set on an authoritative read.
	Stale bool
}

// Tradeable reports whether the token can still be traded on the bonding
// curve. Launched tokens trade on the open market instead.
func (s *TokenSaleState) Tradeable() bool {
	return s.IsOpen && !s.IsLaunched
}

// Clone returns a deep copy so cache consumers can never observe a
// partially updated snapshot.
func (s *TokenSaleState) Clone() *TokenSaleState {
	if s == nil {
		return nil
	}
	out := *s
	if s.SoldAmount != nil {
		out.SoldAmount = new(big.Int).Set(s.SoldAmount)
	}
	if s.RaisedAmount != nil {
		out.RaisedAmount = new(big.Int).Set(s.RaisedAmount)
	}
	return &out
}
