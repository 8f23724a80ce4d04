package models

import (
	"encoding/json"
	"sort"
	"time"
)

// Market identifies a betting market kind.
type Market string

const (
	MarketMoneyline Market = "moneyline"
	MarketSpread    Market = "spread"
	MarketTotal     Market = "total"
)

// Side identifies which side of a market a quote prices.
type Side string

const (
	SideHome  Side = "home"
	SideAway  Side = "away"
	SideDraw  Side = "draw"
	SideOver  Side = "over"
	SideUnder Side = "under"
)

// EventStatus describes where an event is in its lifecycle. Transitions are
// monotonic: scheduled -> live -> finished.
type EventStatus string

const (
	EventScheduled EventStatus = "scheduled"
	EventLive      EventStatus = "live"
	EventFinished  EventStatus = "finished"
)

var statusRank = map[EventStatus]int{
	EventScheduled: 0,
	EventLive:      1,
	EventFinished:  2,
}

// CanTransition reports whether moving from s to next respects the monotonic
// status order. A finished event never changes status again.
func (s EventStatus) CanTransition(next EventStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to >= from
}

// Event represents a single scheduled or live contest.
type Event struct {
	EventID    string      `json:"event_id"`
	SportCode  string      `json:"sport_code"`
	HomeTeamID string      `json:"home_team_id,omitempty"`
	AwayTeamID string      `json:"away_team_id,omitempty"`
	HomeTeam   string      `json:"home_team"`
	AwayTeam   string      `json:"away_team"`
	StartTime  time.Time   `json:"start_time"`
	Status     EventStatus `json:"status"`
}

// ProviderPayload is the untouched upstream response for one event, plus the
// event context the adapter learned while fetching it. It is owned by the
// adapter that produced it and never outlives normalization.
type ProviderPayload struct {
	Provider  string
	EventID   string
	SportCode string
	HomeTeam  string
	AwayTeam  string
	Body      json.RawMessage
	FetchedAt time.Time
}

// MarketQuote is the canonical unit of normalized odds data. Price is always
// an American-odds signed integer regardless of the upstream format. Line is
// nil for moneyline and required for spread/total.
type MarketQuote struct {
	Provider   string    `json:"provider"`
	EventID    string    `json:"event_id"`
	Market     Market    `json:"market"`
	Side       Side      `json:"side"`
	Price      int       `json:"price"`
	Line       *float64  `json:"line,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// QuoteSet holds every MarketQuote for one (event, provider) pair at one point
// in time. Refreshes replace a QuoteSet wholesale, never mutate it in place.
type QuoteSet struct {
	Provider  string        `json:"provider"`
	EventID   string        `json:"event_id"`
	Quotes    []MarketQuote `json:"quotes"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// BestPrice is the most favorable quote found across providers for one
// (market, side). Derived on demand, never cached.
type BestPrice struct {
	Market   Market   `json:"market"`
	Side     Side     `json:"side"`
	Price    int      `json:"price"`
	Line     *float64 `json:"line,omitempty"`
	Provider string   `json:"provider"`
}

// FailureKind classifies why a provider produced no usable quotes.
type FailureKind string

const (
	FailureTransient      FailureKind = "transient"
	FailurePermanent      FailureKind = "permanent"
	FailureEventNotFound  FailureKind = "event_not_found"
	FailureNoUsableQuotes FailureKind = "no_usable_quotes"
)

// ProviderFailure records one provider's failure for diagnostics. Callers
// always see these alongside whatever quotes were available.
type ProviderFailure struct {
	Provider string      `json:"provider"`
	Kind     FailureKind `json:"kind"`
	Reason   string      `json:"reason"`
}

// AggregationResult is the outcome of resolving odds for one event: one
// QuoteSet per provider that returned usable quotes, plus a non-fatal list of
// providers that did not.
type AggregationResult struct {
	EventID   string              `json:"event_id"`
	SportCode string              `json:"sport_code"`
	Quotes    map[string]QuoteSet `json:"quotes"`
	Failures  []ProviderFailure   `json:"partial_failures,omitempty"`
	FromCache bool                `json:"from_cache"`
}

// AllQuotes flattens the per-provider quote sets into a single slice, ordered
// by provider id for determinism.
func (r *AggregationResult) AllQuotes() []MarketQuote {
	if len(r.Quotes) == 0 {
		return nil
	}
	providers := make([]string, 0, len(r.Quotes))
	for p := range r.Quotes {
		providers = append(providers, p)
	}
	sort.Strings(providers)

	var out []MarketQuote
	for _, p := range providers {
		out = append(out, r.Quotes[p].Quotes...)
	}
	return out
}
