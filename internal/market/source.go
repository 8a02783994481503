// internal/market/source.go
package market

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// PoolSource lists the liquidity pools a token participates in after
// graduation.
type PoolSource interface {
	PoolsFor(ctx context.Context, token common.Address) ([]*Pool, error)
}

// ContractCaller is the slice of the RPC client the factory source needs.
// *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

const factoryABIRaw = `[
	{"constant":true,"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"}],"name":"getPair","outputs":[{"name":"pair","type":"address"}],"stateMutability":"view","type":"function"}
]`

const pairABIRaw = `[
	{"constant":true,"inputs":[],"name":"getReserves","outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"token1","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

var (
	factoryABI = mustABI(factoryABIRaw)
	pairABI    = mustABI(pairABIRaw)
)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// FactorySource resolves pools through V2-style factory contracts. Each
// configured factory is asked for pairs between the token and each quote
// token (wrapped native first, then hop candidates such as stables).
type FactorySource struct {
	caller      ContractCaller
	factories   []common.Address
	quoteTokens []common.Address
	feeBps      uint32
	timeout     time.Duration
	logger      *zap.Logger
}

func NewFactorySource(caller ContractCaller, factories, quoteTokens []common.Address, feeBps uint32, timeout time.Duration, logger *zap.Logger) *FactorySource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if feeBps == 0 {
		feeBps = 30 // standard V2 pool fee
	}
	return &FactorySource{
		caller:      caller,
		factories:   factories,
		quoteTokens: quoteTokens,
		feeBps:      feeBps,
		timeout:     timeout,
		logger:      logger.Named("pool-source"),
	}
}

func (s *FactorySource) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	raw, err := s.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	return parsed.Unpack(method, raw)
}

// PoolsFor queries every factory for every (token, quote) pair and loads
// reserves for the pairs that exist.
func (s *FactorySource) PoolsFor(ctx context.Context, token common.Address) ([]*Pool, error) {
	var pools []*Pool
	for _, factory := range s.factories {
		for _, quote := range s.quoteTokens {
			if quote == token {
				continue
			}
			out, err := s.call(ctx, factory, factoryABI, "getPair", token, quote)
			if err != nil {
				return nil, err
			}
			pair := out[0].(common.Address)
			if pair == (common.Address{}) {
				continue
			}
			pool, err := s.loadPool(ctx, pair)
			if err != nil {
				return nil, err
			}
			pools = append(pools, pool)
		}
	}
	s.logger.Debug("Resolved pools",
		zap.String("token", token.Hex()),
		zap.Int("count", len(pools)))
	return pools, nil
}

func (s *FactorySource) loadPool(ctx context.Context, pair common.Address) (*Pool, error) {
	out, err := s.call(ctx, pair, pairABI, "token0")
	if err != nil {
		return nil, err
	}
	token0 := out[0].(common.Address)

	out, err = s.call(ctx, pair, pairABI, "token1")
	if err != nil {
		return nil, err
	}
	token1 := out[0].(common.Address)

	out, err = s.call(ctx, pair, pairABI, "getReserves")
	if err != nil {
		return nil, err
	}

	return &Pool{
		Address:  pair,
		Token0:   token0,
		Token1:   token1,
		Reserve0: out[0].(*big.Int),
		Reserve1: out[1].(*big.Int),
		FeeBps:   s.feeBps,
	}, nil
}

// CachingSource decorates a PoolSource with a short TTL so repeated quote
// requests within one pricing window reuse the same reserve snapshot.
type CachingSource struct {
	inner PoolSource
	ttl   time.Duration

	mu      sync.Mutex
	entries map[common.Address]cachedPools
}

type cachedPools struct {
	pools     []*Pool
	fetchedAt time.Time
}

func NewCachingSource(inner PoolSource, ttl time.Duration) *CachingSource {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &CachingSource{
		inner:   inner,
		ttl:     ttl,
		entries: make(map[common.Address]cachedPools),
	}
}

func (c *CachingSource) PoolsFor(ctx context.Context, token common.Address) ([]*Pool, error) {
	c.mu.Lock()
	e, ok := c.entries[token]
	c.mu.Unlock()
	if ok && time.Since(e.fetchedAt) < c.ttl {
		return e.pools, nil
	}

	pools, err := c.inner.PoolsFor(ctx, token)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[token] = cachedPools{pools: pools, fetchedAt: time.Now()}
	c.mu.Unlock()
	return pools, nil
}

// Invalidate drops the cached pool set for a token.
func (c *CachingSource) Invalidate(token common.Address) {
	c.mu.Lock()
	delete(c.entries, token)
	c.mu.Unlock()
}
