// internal/market/quoter.go
package market

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// RouteQuote is one evaluated market route: a direct pool or a two-hop
// path through an intermediate token.
type RouteQuote struct {
	Path      []common.Address // tokenIn, [mid,] tokenOut
	Pools     []*Pool
	AmountIn  *big.Int
	AmountOut *big.Int
	ImpactBps int64
	// PoolFractionBps is the largest share of any hop's input-side
	// reserve this trade consumes, for liquidity limits.
	PoolFractionBps int64
}

// Quoter prices post-graduation trades across every discovered route.
type Quoter struct {
	source  PoolSource
	wnative common.Address
	logger  *zap.Logger
}

func NewQuoter(source PoolSource, wnative common.Address, logger *zap.Logger) *Quoter {
	return &Quoter{
		source:  source,
		wnative: wnative,
		logger:  logger.Named("market-quoter"),
	}
}

// BuyRoutes evaluates native→token routes; SellRoutes token→native.
func (q *Quoter) BuyRoutes(ctx context.Context, token common.Address, nativeIn *big.Int) ([]*RouteQuote, error) {
	return q.routes(ctx, token, q.wnative, token, nativeIn)
}

func (q *Quoter) SellRoutes(ctx context.Context, token common.Address, tokensIn *big.Int) ([]*RouteQuote, error) {
	return q.routes(ctx, token, token, q.wnative, tokensIn)
}

// routes discovers direct and two-hop candidates, anchored at the token's
// own pool list so thin tokens are never scanned from the huge native
// side. Discovery order matters: route selection keeps the earliest
// discovered route on equal outputs.
func (q *Quoter) routes(ctx context.Context, token, tokenIn, tokenOut common.Address, amountIn *big.Int) ([]*RouteQuote, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}

	pools, err := q.source.PoolsFor(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("pool discovery failed for %s: %w", token.Hex(), err)
	}

	buying := tokenOut == token
	counter := tokenOut // quote asset on the far side of the path
	if buying {
		counter = tokenIn
	}

	var quotes []*RouteQuote

	// Direct pools first.
	for _, pool := range pools {
		if _, _, ok := pool.ReservesFor(token); !ok || pool.Other(token) != counter {
			continue
		}
		if rq := q.evalPath(amountIn, []common.Address{tokenIn, tokenOut}, []*Pool{pool}); rq != nil {
			quotes = append(quotes, rq)
		}
	}

	// Two-hop candidates through any intermediate the token trades against.
	for _, first := range pools {
		if _, _, ok := first.ReservesFor(token); !ok {
			continue
		}
		mid := first.Other(token)
		if mid == counter {
			continue
		}
		midPools, err := q.source.PoolsFor(ctx, mid)
		if err != nil {
			return nil, fmt.Errorf("pool discovery failed for hop %s: %w", mid.Hex(), err)
		}
		for _, second := range midPools {
			if _, _, ok := second.ReservesFor(mid); !ok || second.Other(mid) != counter {
				continue
			}
			var (
				path     []common.Address
				hopPools []*Pool
			)
			if buying {
				path = []common.Address{tokenIn, mid, token}
				hopPools = []*Pool{second, first}
			} else {
				path = []common.Address{token, mid, tokenOut}
				hopPools = []*Pool{first, second}
			}
			if rq := q.evalPath(amountIn, path, hopPools); rq != nil {
				quotes = append(quotes, rq)
			}
		}
	}

	q.logger.Debug("Evaluated market routes",
		zap.String("token", token.Hex()),
		zap.Int("candidates", len(quotes)))
	return quotes, nil
}

func (q *Quoter) evalPath(amountIn *big.Int, path []common.Address, pools []*Pool) *RouteQuote {
	amount := new(big.Int).Set(amountIn)
	var (
		maxFraction int64
		impact      int64
	)
	for i, pool := range pools {
		rIn, rOut, ok := pool.ReservesFor(path[i])
		if !ok || rIn.Sign() == 0 || rOut.Sign() == 0 {
			return nil
		}

		fraction := new(big.Int).Mul(amount, big.NewInt(10_000))
		fraction.Div(fraction, rIn)
		if f := fraction.Int64(); f > maxFraction {
			maxFraction = f
		}

		out := AmountOut(amount, rIn, rOut, pool.FeeBps)
		if out.Sign() == 0 {
			return nil
		}
		impact += ImpactBps(amount, out, rIn, rOut)
		amount = out
	}

	return &RouteQuote{
		Path:            path,
		Pools:           pools,
		AmountIn:        new(big.Int).Set(amountIn),
		AmountOut:       amount,
		ImpactBps:       impact,
		PoolFractionBps: maxFraction,
	}
}

// Best picks the winning route: highest output, first strictly-better
// route wins, equal outputs keep the earliest discovered.
func Best(quotes []*RouteQuote) *RouteQuote {
	var best *RouteQuote
	for _, rq := range quotes {
		if best == nil || rq.AmountOut.Cmp(best.AmountOut) > 0 {
			best = rq
		}
	}
	return best
}
