// internal/events/types.go
package events

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType represents the type of event.
type EventType string

const (
	// Chain events, emitted by the ingestion pipeline.
	TokenCreated  EventType = "token.created"
	TokenTraded   EventType = "token.traded"
	TokenLaunched EventType = "token.launched"

	// Trade lifecycle events, emitted by the router.
	TradeExecuted EventType = "trade.executed"
	TradeFailed   EventType = "trade.failed"

	// Advisory threat events, emitted by the MEV screen.
	ThreatDetected EventType = "threat.detected"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.EventTime }

// ChainRef identifies the on-chain log an event was derived from.
// (TxHash, LogIndex) is the consumer-side dedupe key: delivery across the
// WS/polling boundary is at-least-once.
type ChainRef struct {
	TxHash      common.Hash
	LogIndex    uint
	BlockNumber uint64
}

// TokenCreatedEvent is emitted when a new token sale opens.
type TokenCreatedEvent struct {
	BaseEvent
	ChainRef
	Token   common.Address
	Creator common.Address
	Name    string
	Symbol  string
}

// TokenTradedEvent is emitted on every curve buy or sell.
type TokenTradedEvent struct {
	BaseEvent
	ChainRef
	Token         common.Address
	Trader        common.Address
	IsBuy         bool
	AmountIn      *big.Int
	AmountOut     *big.Int
	NewSoldAmount *big.Int
}

// TokenLaunchedEvent is emitted on graduation: a one-way transition off
// the bonding curve onto open-market liquidity.
type TokenLaunchedEvent struct {
	BaseEvent
	ChainRef
	Token        common.Address
	RaisedAmount *big.Int
}

// TradeExecutedEvent carries a terminal trade record.
type TradeExecutedEvent struct {
	BaseEvent
	TradeID             string
	Token               common.Address
	TxHash              common.Hash
	AmountIn            *big.Int
	AmountOut           *big.Int
	GasUsed             uint64
	RealizedSlippageBps int64
}

// TradeFailedEvent is emitted when execution fails after validation.
type TradeFailedEvent struct {
	BaseEvent
	TradeID string
	Token   common.Address
	Code    string
	Reason  string
}

// ThreatDetectedEvent is advisory only; it never blocks execution.
type ThreatDetectedEvent struct {
	BaseEvent
	Token       common.Address
	Kind        string
	Description string
}
