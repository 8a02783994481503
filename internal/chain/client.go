// internal/chain/client.go
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/vmelnikov/launchcore/internal/domain"
)

// Reader is the read-only chain collaborator for token sale state.
type Reader interface {
	SaleState(ctx context.Context, token common.Address) (*domain.TokenSaleState, error)
}

// LogSource supplies both a push subscription and a range-queryable
// fallback for launchpad events.
type LogSource interface {
	HeadBlock(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	SubscribeLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// Client wraps an EVM JSON-RPC endpoint with the launchpad contract
// bindings. Every call carries a bounded timeout; the client never retries
// internally, callers decide their own retry policy.
type Client struct {
	eth       *ethclient.Client
	launchpad common.Address
	timeout   time.Duration
	logger    *zap.Logger
}

func NewClient(ctx context.Context, rawURL string, launchpad common.Address, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rawURL, err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		eth:       eth,
		launchpad: launchpad,
		timeout:   timeout,
		logger:    logger.Named("chain"),
	}, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

// Launchpad returns the platform contract address.
func (c *Client) Launchpad() common.Address {
	return c.launchpad
}

func (c *Client) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := launchpadABIParsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.launchpad, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	out, err := launchpadABIParsed.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return out, nil
}

// SaleState performs an authoritative read of a token's sale state.
func (c *Client) SaleState(ctx context.Context, token common.Address) (*domain.TokenSaleState, error) {
	out, err := c.call(ctx, "getTokenSale", token)
	if err != nil {
		return nil, err
	}
	if len(out) != 9 {
		return nil, fmt.Errorf("unexpected getTokenSale result arity: %d", len(out))
	}

	state := &domain.TokenSaleState{
		Address:      token,
		Creator:      out[0].(common.Address),
		Name:         out[1].(string),
		Symbol:       out[2].(string),
		SoldAmount:   out[3].(*big.Int),
		RaisedAmount: out[4].(*big.Int),
		IsOpen:       out[5].(bool),
		IsLaunched:   out[6].(bool),
	}
	if created := out[7].(*big.Int); created.Sign() > 0 {
		state.CreatedAt = time.Unix(created.Int64(), 0).UTC()
	}
	if launched := out[8].(*big.Int); launched.Sign() > 0 {
		state.LaunchedAt = time.Unix(launched.Int64(), 0).UTC()
	}

	c.logger.Debug("Read token sale state",
		zap.String("token", token.Hex()),
		zap.String("sold", state.SoldAmount.String()),
		zap.Bool("is_open", state.IsOpen),
		zap.Bool("is_launched", state.IsLaunched))

	return state, nil
}

// CalculateTokensOut asks the contract itself to price a buy. Used for
// parity checks against the local pricer, never on the quote hot path.
func (c *Client) CalculateTokensOut(ctx context.Context, sold, nativeIn *big.Int) (*big.Int, error) {
	out, err := c.call(ctx, "calculateTokensOut", sold, nativeIn)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// CalculateNativeOut is the sell-side contract pricing call.
func (c *Client) CalculateNativeOut(ctx context.Context, sold, tokensIn *big.Int) (*big.Int, error) {
	out, err := c.call(ctx, "calculateETHOut", sold, tokensIn)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// PlatformFeeBps reads the current platform fee parameter.
func (c *Client) PlatformFeeBps(ctx context.Context) (uint32, error) {
	out, err := c.call(ctx, "platformFeeBps")
	if err != nil {
		return 0, err
	}
	return uint32(out[0].(*big.Int).Uint64()), nil
}

// Counters returns the aggregate created/launched token counters.
func (c *Client) Counters(ctx context.Context) (created, launched *big.Int, err error) {
	out, err := c.call(ctx, "totalTokensCreated")
	if err != nil {
		return nil, nil, err
	}
	created = out[0].(*big.Int)

	out, err = c.call(ctx, "totalTokensLaunched")
	if err != nil {
		return nil, nil, err
	}
	launched = out[0].(*big.Int)
	return created, launched, nil
}

// CallContract executes a read-only call against an arbitrary contract.
// Used by the market pool source; launchpad reads go through SaleState.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.eth.CallContract(ctx, msg, blockNumber)
}

// HeadBlock returns the latest block number.
func (c *Client) HeadBlock(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.eth.BlockNumber(ctx)
}

// FilterLogs runs a bounded range query.
func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.eth.FilterLogs(ctx, q)
}

// SubscribeLogs opens a push subscription. Only works on WS endpoints.
func (c *Client) SubscribeLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return c.eth.SubscribeFilterLogs(ctx, q, ch)
}

// TransactionReceipt fetches a receipt, ethereum.NotFound while pending.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.eth.TransactionReceipt(ctx, hash)
}

// BuyCallData packs the calldata for a curve buy.
func BuyCallData(token common.Address, minTokensOut *big.Int) ([]byte, error) {
	return launchpadABIParsed.Pack("buyToken", token, minTokensOut)
}

// SellCallData packs the calldata for a curve sell.
func SellCallData(token common.Address, tokenAmount, minNativeOut *big.Int) ([]byte, error) {
	return launchpadABIParsed.Pack("sellToken", token, tokenAmount, minNativeOut)
}
