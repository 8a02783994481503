// internal/pipeline/decode.go
package pipeline

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vmelnikov/launchcore/internal/chain"
	"github.com/vmelnikov/launchcore/internal/events"
)

func chainRef(lg types.Log) events.ChainRef {
	return events.ChainRef{
		TxHash:      lg.TxHash,
		LogIndex:    lg.Index,
		BlockNumber: lg.BlockNumber,
	}
}

// decodeLog turns a raw launchpad log into its domain event and reports
// the affected token address.
func decodeLog(lg types.Log) (events.Event, common.Address, error) {
	if len(lg.Topics) == 0 {
		return nil, common.Address{}, fmt.Errorf("log has no topics")
	}
	token, ok := chain.TokenOfLog(lg.Topics)
	if !ok {
		return nil, common.Address{}, fmt.Errorf("log has no token topic")
	}
	base := events.BaseEvent{EventTime: time.Now()}
	parsed := chain.LaunchpadABI()

	switch lg.Topics[0] {
	case chain.TopicTokenCreated:
		if len(lg.Topics) < 3 {
			return nil, token, fmt.Errorf("TokenCreated log missing creator topic")
		}
		out, err := parsed.Unpack("TokenCreated", lg.Data)
		if err != nil {
			return nil, token, fmt.Errorf("failed to unpack TokenCreated: %w", err)
		}
		base.EventType = events.TokenCreated
		return &events.TokenCreatedEvent{
			BaseEvent: base,
			ChainRef:  chainRef(lg),
			Token:     token,
			Creator:   common.BytesToAddress(lg.Topics[2].Bytes()),
			Name:      out[0].(string),
			Symbol:    out[1].(string),
		}, token, nil

	case chain.TopicTokenTraded:
		if len(lg.Topics) < 3 {
			return nil, token, fmt.Errorf("TokenTraded log missing trader topic")
		}
		out, err := parsed.Unpack("TokenTraded", lg.Data)
		if err != nil {
			return nil, token, fmt.Errorf("failed to unpack TokenTraded: %w", err)
		}
		base.EventType = events.TokenTraded
		return &events.TokenTradedEvent{
			BaseEvent:     base,
			ChainRef:      chainRef(lg),
			Token:         token,
			Trader:        common.BytesToAddress(lg.Topics[2].Bytes()),
			IsBuy:         out[0].(bool),
			AmountIn:      out[1].(*big.Int),
			AmountOut:     out[2].(*big.Int),
			NewSoldAmount: out[3].(*big.Int),
		}, token, nil

	case chain.TopicTokenLaunched:
		out, err := parsed.Unpack("TokenLaunched", lg.Data)
		if err != nil {
			return nil, token, fmt.Errorf("failed to unpack TokenLaunched: %w", err)
		}
		base.EventType = events.TokenLaunched
		return &events.TokenLaunchedEvent{
			BaseEvent:    base,
			ChainRef:     chainRef(lg),
			Token:        token,
			RaisedAmount: out[0].(*big.Int),
		}, token, nil

	default:
		return nil, token, fmt.Errorf("unknown event topic %s", lg.Topics[0].Hex())
	}
}
