// internal/storage/models/trade.go
package models

import (
	"math/big"
	"time"

	"github.com/vmelnikov/launchcore/internal/domain"
)

// Trade is the durable record of an executed trade. Amounts are stored as
// numeric(78,0) strings so 18-decimal base units survive intact.
type Trade struct {
	BaseModel
	TradeID             string    `gorm:"unique;not null;type:varchar(36)"`
	TxHash              string    `gorm:"uniqueIndex;not null;type:varchar(66)"`
	Token               string    `gorm:"index;not null;type:varchar(42)"`
	Trader              string    `gorm:"index;not null;type:varchar(42)"`
	Side                string    `gorm:"not null;type:varchar(4)"`
	AmountIn            string    `gorm:"not null;type:numeric(78,0)"`
	AmountOut           string    `gorm:"not null;type:numeric(78,0)"`
	FeePaid             string    `gorm:"type:numeric(78,0)"`
	BlockNumber         uint64    `gorm:"index;not null"`
	GasUsed             uint64    `gorm:"not null"`
	RealizedSlippageBps int64     `gorm:"default:0"`
	CompletedAt         time.Time `gorm:"index;not null"`
}

// TradeFromResult maps a terminal trade result onto its storage row.
func TradeFromResult(result *domain.TradeResult) *Trade {
	return &Trade{
		TradeID:             result.ID,
		TxHash:              result.TxHash.Hex(),
		Token:               result.Token.Hex(),
		Trader:              result.Trader.Hex(),
		Side:                string(result.Side),
		AmountIn:            bigString(result.AmountIn),
		AmountOut:           bigString(result.AmountOut),
		FeePaid:             bigString(result.FeePaid),
		BlockNumber:         result.BlockNumber,
		GasUsed:             result.GasUsed,
		RealizedSlippageBps: result.RealizedSlippageBps,
		CompletedAt:         result.CompletedAt,
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
