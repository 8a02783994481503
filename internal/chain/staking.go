// internal/chain/staking.go
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

const erc20BalanceABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var erc20ABI = mustParseABI(erc20BalanceABI)

// Caller executes read-only contract calls.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// StakingReader reads a trader's staked platform-token balance, used by
// the fee tier resolver.
type StakingReader struct {
	caller Caller
	token  common.Address
}

func NewStakingReader(caller Caller, token common.Address) *StakingReader {
	return &StakingReader{
		caller: caller,
		token:  token,
	}
}

// StakedBalance returns the trader's balance of the staking token in base
// units.
func (s *StakingReader) StakedBalance(ctx context.Context, trader common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", trader)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf call: %w", err)
	}
	raw, err := s.caller.CallContract(ctx, ethereum.CallMsg{To: &s.token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read staked balance: %w", err)
	}
	out, err := erc20ABI.Unpack("balanceOf", raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode staked balance: %w", err)
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf return type %T", out[0])
	}
	return balance, nil
}
