package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCaller struct {
	ret []byte
	err error
	msg ethereum.CallMsg
}

func (c *stubCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c.msg = msg
	return c.ret, c.err
}

func TestStakedBalance(t *testing.T) {
	want := new(big.Int).Mul(big.NewInt(12_345), big.NewInt(1e18))
	ret, err := erc20ABI.Methods["balanceOf"].Outputs.Pack(want)
	require.NoError(t, err)

	token := common.HexToAddress("0x4444444444444444444444444444444444444444")
	trader := common.HexToAddress("0x5555555555555555555555555555555555555555")
	caller := &stubCaller{ret: ret}

	reader := NewStakingReader(caller, token)
	got, err := reader.StakedBalance(context.Background(), trader)
	require.NoError(t, err)
	assert.Zero(t, want.Cmp(got))
	assert.Equal(t, token, *caller.msg.To)
}

func TestStakedBalance_CallFailure(t *testing.T) {
	caller := &stubCaller{err: errors.New("connection refused")}
	reader := NewStakingReader(caller, common.HexToAddress("0x44"))

	_, err := reader.StakedBalance(context.Background(), common.HexToAddress("0x55"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "staked balance")
}
