// internal/trade/types.go
package trade

import (
	"fmt"

	"github.com/vmelnikov/launchcore/internal/domain"
	"github.com/vmelnikov/launchcore/internal/market"
)

// RouteKind tags the closed set of execution paths. Execution switches
// exhaustively over the kind; an unrecognized kind is a programming error,
// not a fallthrough.
type RouteKind int

const (
	// RouteCurve trades against the launchpad bonding curve.
	RouteCurve RouteKind = iota
	// RouteMarket trades a single post-graduation pool.
	RouteMarket
	// RouteMultiHop trades through an intermediate token.
	RouteMultiHop
)

func (k RouteKind) String() string {
	switch k {
	case RouteCurve:
		return "curve"
	case RouteMarket:
		return "market"
	case RouteMultiHop:
		return "multihop"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Route is the selected execution path for a quote. Market is set for
// RouteMarket and RouteMultiHop, nil for RouteCurve.
type Route struct {
	Kind   RouteKind
	Market *market.RouteQuote
}

// routeFor tags a market route by its hop count.
func routeFor(rq *market.RouteQuote) Route {
	kind := RouteMarket
	if len(rq.Path) > 2 {
		kind = RouteMultiHop
	}
	return Route{Kind: kind, Market: rq}
}

// Quote couples the priced answer with the route that produced it.
type Quote struct {
	domain.PriceQuote
	Route Route
}
