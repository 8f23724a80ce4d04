// Package bestprice computes the most favorable quote per market and side
// across a collection of normalized quote sets. Results are derived on every
// call and never cached: the inputs change faster than caching would pay for.
package bestprice

import (
	"sort"

	"github.com/jraydirect/wagerloop-odds-engine/internal/models"
)

// Best returns the most favorable quote for one (market, side) across the
// given per-provider quote sets, or nil when no provider quotes it. For a
// fixed side a higher American price always favors the bettor. Ties prefer
// the most recently observed quote, then the lexicographically first
// provider id, so the result is deterministic.
func Best(sets map[string]models.QuoteSet, market models.Market, side models.Side) *models.BestPrice {
	var best *models.MarketQuote

	for _, set := range sets {
		for i := range set.Quotes {
			q := &set.Quotes[i]
			if q.Market != market || q.Side != side {
				continue
			}
			if best == nil || better(q, best) {
				best = q
			}
		}
	}

	if best == nil {
		return nil
	}
	return &models.BestPrice{
		Market:   best.Market,
		Side:     best.Side,
		Price:    best.Price,
		Line:     best.Line,
		Provider: best.Provider,
	}
}

// Sweep returns the best price for every (market, side) present anywhere in
// the given quote sets, in a fixed market-then-side order.
func Sweep(sets map[string]models.QuoteSet) []models.BestPrice {
	type key struct {
		market models.Market
		side   models.Side
	}
	present := make(map[key]bool)
	for _, set := range sets {
		for _, q := range set.Quotes {
			present[key{q.Market, q.Side}] = true
		}
	}

	keys := make([]key, 0, len(present))
	for k := range present {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].market != keys[j].market {
			return marketRank(keys[i].market) < marketRank(keys[j].market)
		}
		return sideRank(keys[i].side) < sideRank(keys[j].side)
	})

	out := make([]models.BestPrice, 0, len(keys))
	for _, k := range keys {
		if bp := Best(sets, k.market, k.side); bp != nil {
			out = append(out, *bp)
		}
	}
	return out
}

func better(candidate, current *models.MarketQuote) bool {
	if candidate.Price != current.Price {
		return candidate.Price > current.Price
	}
	if !candidate.ObservedAt.Equal(current.ObservedAt) {
		return candidate.ObservedAt.After(current.ObservedAt)
	}
	return candidate.Provider < current.Provider
}

func marketRank(m models.Market) int {
	switch m {
	case models.MarketMoneyline:
		return 0
	case models.MarketSpread:
		return 1
	case models.MarketTotal:
		return 2
	default:
		return 3
	}
}

func sideRank(s models.Side) int {
	switch s {
	case models.SideHome:
		return 0
	case models.SideAway:
		return 1
	case models.SideDraw:
		return 2
	case models.SideOver:
		return 3
	case models.SideUnder:
		return 4
	default:
		return 5
	}
}
