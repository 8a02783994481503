// internal/storage/models/token.go
package models

import (
	"time"

	"github.com/vmelnikov/launchcore/internal/domain"
)

// Token mirrors the last observed sale state of a launchpad token. Rows
// are upserted from pipeline events; the chain stays authoritative.
type Token struct {
	BaseModel
	Address      string `gorm:"unique;not null;type:varchar(42)"`
	Creator      string `gorm:"index;type:varchar(42)"`
	Name         string `gorm:"type:varchar(100)"`
	Symbol       string `gorm:"type:varchar(20)"`
	SoldAmount   string `gorm:"type:numeric(78,0)"`
	RaisedAmount string `gorm:"type:numeric(78,0)"`
	IsOpen       bool
	IsLaunched   bool `gorm:"index"`
	LaunchedAt   *time.Time
}

// TokenFromState maps a sale-state snapshot onto its storage row.
func TokenFromState(st *domain.TokenSaleState) *Token {
	row := &Token{
		Address:      st.Address.Hex(),
		Creator:      st.Creator.Hex(),
		Name:         st.Name,
		Symbol:       st.Symbol,
		SoldAmount:   bigString(st.SoldAmount),
		RaisedAmount: bigString(st.RaisedAmount),
		IsOpen:       st.IsOpen,
		IsLaunched:   st.IsLaunched,
	}
	if !st.LaunchedAt.IsZero() {
		at := st.LaunchedAt
		row.LaunchedAt = &at
	}
	return row
}
