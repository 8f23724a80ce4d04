// Package normalize converts per-provider raw payloads into canonical
// MarketQuote sets. It tolerates the three structurally distinct upstream
// shapes the engine has met in the wild: a bookmaker/outcomes array form, a
// nested homeTeamOdds/awayTeamOdds form, and a flat moneyline/spread/total
// object form. Prices come out in American convention regardless of the
// upstream format; missing numeric fields omit the market rather than
// defaulting to zero.
package normalize

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jraydirect/wagerloop-odds-engine/internal/metrics"
	"github.com/jraydirect/wagerloop-odds-engine/internal/models"
	"github.com/jraydirect/wagerloop-odds-engine/internal/oddserr"
)

const lineEpsilon = 1e-9

// Normalizer converts raw provider payloads to canonical quotes. It holds no
// per-request state: the observed-at timestamp is supplied by the caller so
// the conversion itself stays idempotent.
type Normalizer struct {
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// New creates a Normalizer.
func New(logger zerolog.Logger, m *metrics.Metrics) *Normalizer {
	return &Normalizer{
		logger:  logger.With().Str("component", "normalizer").Logger(),
		metrics: m,
	}
}

// Normalize converts one raw payload into canonical quotes. A payload that
// violates a canonical invariant fails with a NormalizationError and is
// discarded whole; a payload that simply lacks usable markets yields an empty
// slice.
func (n *Normalizer) Normalize(p *models.ProviderPayload, observedAt time.Time) ([]models.MarketQuote, error) {
	quotes, err := n.convert(p, observedAt)
	if err != nil {
		n.metrics.NormalizeErrors.WithLabelValues(p.Provider).Inc()
		n.logger.Warn().
			Str("provider", p.Provider).
			Str("event_id", p.EventID).
			Err(err).
			Msg("payload discarded")
		return nil, err
	}
	return quotes, nil
}

func (n *Normalizer) convert(p *models.ProviderPayload, observedAt time.Time) ([]models.MarketQuote, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(p.Body, &probe); err != nil {
		return nil, &oddserr.NormalizationError{Provider: p.Provider, Reason: "payload is not a JSON object"}
	}

	switch {
	case hasKey(probe, "bookmakers"):
		return n.fromOutcomes(p, observedAt)
	case hasKey(probe, "odds"):
		return n.fromNestedTeamOdds(p, observedAt)
	case hasKey(probe, "moneyline") || hasKey(probe, "spread") || hasKey(probe, "total"):
		return n.fromFlatLines(p, observedAt)
	default:
		return nil, &oddserr.NormalizationError{Provider: p.Provider, Reason: "unrecognized payload shape"}
	}
}

func hasKey(m map[string]json.RawMessage, key string) bool {
	raw, ok := m[key]
	return ok && string(raw) != "null"
}

// --- bookmaker/outcomes array shape (The Odds API family) ---

type outcomesBody struct {
	Bookmakers []outcomesBookmaker `json:"bookmakers"`
}

type outcomesBookmaker struct {
	Key     string           `json:"key"`
	Markets []outcomesMarket `json:"markets"`
}

type outcomesMarket struct {
	Key      string           `json:"key"`
	Outcomes []outcomesOutcome `json:"outcomes"`
}

type outcomesOutcome struct {
	Name  string   `json:"name"`
	Price *float64 `json:"price"`
	Point *float64 `json:"point"`
}

func (n *Normalizer) fromOutcomes(p *models.ProviderPayload, observedAt time.Time) ([]models.MarketQuote, error) {
	var body outcomesBody
	if err := json.Unmarshal(p.Body, &body); err != nil {
		return nil, &oddserr.NormalizationError{Provider: p.Provider, Reason: "malformed bookmakers array"}
	}

	// One set of quotes per provider: the first bookmaker with usable
	// markets represents this provider's line.
	for _, book := range body.Bookmakers {
		quotes, err := n.bookQuotes(p, book, observedAt)
		if err != nil {
			return nil, err
		}
		if len(quotes) > 0 {
			return quotes, nil
		}
	}
	return nil, nil
}

func (n *Normalizer) bookQuotes(p *models.ProviderPayload, book outcomesBookmaker, observedAt time.Time) ([]models.MarketQuote, error) {
	var quotes []models.MarketQuote

	for _, market := range book.Markets {
		switch market.Key {
		case "h2h":
			home := findOutcome(market.Outcomes, p.HomeTeam)
			away := findOutcome(market.Outcomes, p.AwayTeam)
			if home == nil || away == nil || home.Price == nil || away.Price == nil {
				continue
			}
			homePrice, homeOK := priceFromUpstream(*home.Price)
			awayPrice, awayOK := priceFromUpstream(*away.Price)
			if !homeOK || !awayOK {
				continue
			}
			quotes = append(quotes,
				newQuote(p, models.MarketMoneyline, models.SideHome, homePrice, nil, observedAt),
				newQuote(p, models.MarketMoneyline, models.SideAway, awayPrice, nil, observedAt),
			)
			if draw := findOutcome(market.Outcomes, "Draw"); draw != nil && draw.Price != nil {
				if price, ok := priceFromUpstream(*draw.Price); ok {
					quotes = append(quotes, newQuote(p, models.MarketMoneyline, models.SideDraw, price, nil, observedAt))
				}
			}

		case "spreads":
			home := findOutcome(market.Outcomes, p.HomeTeam)
			away := findOutcome(market.Outcomes, p.AwayTeam)
			if home == nil || away == nil ||
				home.Price == nil || away.Price == nil ||
				home.Point == nil || away.Point == nil {
				continue
			}
			if math.Abs(*home.Point+*away.Point) > lineEpsilon {
				return nil, &oddserr.NormalizationError{
					Provider: p.Provider,
					Reason:   "inconsistent spread lines: home line is not the negated away line",
				}
			}
			homePrice, homeOK := priceFromUpstream(*home.Price)
			awayPrice, awayOK := priceFromUpstream(*away.Price)
			if !homeOK || !awayOK {
				continue
			}
			quotes = append(quotes,
				newQuote(p, models.MarketSpread, models.SideHome, homePrice, home.Point, observedAt),
				newQuote(p, models.MarketSpread, models.SideAway, awayPrice, away.Point, observedAt),
			)

		case "totals":
			over := findOutcome(market.Outcomes, "Over")
			under := findOutcome(market.Outcomes, "Under")
			if over == nil || under == nil ||
				over.Price == nil || under.Price == nil || over.Point == nil {
				continue
			}
			if under.Point != nil && math.Abs(*over.Point-*under.Point) > lineEpsilon {
				continue
			}
			overPrice, overOK := priceFromUpstream(*over.Price)
			underPrice, underOK := priceFromUpstream(*under.Price)
			if !overOK || !underOK {
				continue
			}
			quotes = append(quotes,
				newQuote(p, models.MarketTotal, models.SideOver, overPrice, over.Point, observedAt),
				newQuote(p, models.MarketTotal, models.SideUnder, underPrice, over.Point, observedAt),
			)
		}
	}

	return quotes, nil
}

func findOutcome(outcomes []outcomesOutcome, name string) *outcomesOutcome {
	if name == "" {
		return nil
	}
	for i := range outcomes {
		if strings.EqualFold(outcomes[i].Name, name) {
			return &outcomes[i]
		}
	}
	return nil
}

// --- nested homeTeamOdds/awayTeamOdds shape (ESPN scoreboard) ---

type nestedBody struct {
	Odds []nestedOdds `json:"odds"`
}

type nestedOdds struct {
	Spread       *float64        `json:"spread"`
	OverUnder    *float64        `json:"overUnder"`
	OverOdds     *float64        `json:"overOdds"`
	UnderOdds    *float64        `json:"underOdds"`
	HomeTeamOdds *nestedTeamOdds `json:"homeTeamOdds"`
	AwayTeamOdds *nestedTeamOdds `json:"awayTeamOdds"`
}

type nestedTeamOdds struct {
	MoneyLine  *float64 `json:"moneyLine"`
	SpreadOdds *float64 `json:"spreadOdds"`
}

func (n *Normalizer) fromNestedTeamOdds(p *models.ProviderPayload, observedAt time.Time) ([]models.MarketQuote, error) {
	var body nestedBody
	if err := json.Unmarshal(p.Body, &body); err != nil {
		return nil, &oddserr.NormalizationError{Provider: p.Provider, Reason: "malformed odds array"}
	}

	for _, odds := range body.Odds {
		quotes := n.nestedQuotes(p, odds, observedAt)
		if len(quotes) > 0 {
			return quotes, nil
		}
	}
	return nil, nil
}

func (n *Normalizer) nestedQuotes(p *models.ProviderPayload, odds nestedOdds, observedAt time.Time) []models.MarketQuote {
	var quotes []models.MarketQuote

	if odds.HomeTeamOdds != nil && odds.AwayTeamOdds != nil &&
		odds.HomeTeamOdds.MoneyLine != nil && odds.AwayTeamOdds.MoneyLine != nil {
		homePrice, homeOK := priceFromUpstream(*odds.HomeTeamOdds.MoneyLine)
		awayPrice, awayOK := priceFromUpstream(*odds.AwayTeamOdds.MoneyLine)
		if homeOK && awayOK {
			quotes = append(quotes,
				newQuote(p, models.MarketMoneyline, models.SideHome, homePrice, nil, observedAt),
				newQuote(p, models.MarketMoneyline, models.SideAway, awayPrice, nil, observedAt),
			)
		}
	}

	// Upstream publishes the home line only; the away line is derived by
	// negation, so the pair is consistent by construction.
	if odds.Spread != nil && odds.HomeTeamOdds != nil && odds.AwayTeamOdds != nil &&
		odds.HomeTeamOdds.SpreadOdds != nil && odds.AwayTeamOdds.SpreadOdds != nil {
		homePrice, homeOK := priceFromUpstream(*odds.HomeTeamOdds.SpreadOdds)
		awayPrice, awayOK := priceFromUpstream(*odds.AwayTeamOdds.SpreadOdds)
		if homeOK && awayOK {
			homeLine := *odds.Spread
			awayLine := -homeLine
			quotes = append(quotes,
				newQuote(p, models.MarketSpread, models.SideHome, homePrice, &homeLine, observedAt),
				newQuote(p, models.MarketSpread, models.SideAway, awayPrice, &awayLine, observedAt),
			)
		}
	}

	if odds.OverUnder != nil && odds.OverOdds != nil && odds.UnderOdds != nil {
		overPrice, overOK := priceFromUpstream(*odds.OverOdds)
		underPrice, underOK := priceFromUpstream(*odds.UnderOdds)
		if overOK && underOK {
			quotes = append(quotes,
				newQuote(p, models.MarketTotal, models.SideOver, overPrice, odds.OverUnder, observedAt),
				newQuote(p, models.MarketTotal, models.SideUnder, underPrice, odds.OverUnder, observedAt),
			)
		}
	}

	return quotes
}

// --- flat moneyline/spread/total object shape (lines feeds) ---

type flatBody struct {
	Moneyline *flatMoneyline `json:"moneyline"`
	Spread    *flatSpread    `json:"spread"`
	Total     *flatTotal     `json:"total"`
}

type flatMoneyline struct {
	Home *float64 `json:"home"`
	Away *float64 `json:"away"`
	Draw *float64 `json:"draw"`
}

type flatSpread struct {
	Line     *float64 `json:"line"`
	HomeLine *float64 `json:"home_line"`
	AwayLine *float64 `json:"away_line"`
	Home     *float64 `json:"home"`
	Away     *float64 `json:"away"`
}

type flatTotal struct {
	Line  *float64 `json:"line"`
	Over  *float64 `json:"over"`
	Under *float64 `json:"under"`
}

func (n *Normalizer) fromFlatLines(p *models.ProviderPayload, observedAt time.Time) ([]models.MarketQuote, error) {
	var body flatBody
	if err := json.Unmarshal(p.Body, &body); err != nil {
		return nil, &oddserr.NormalizationError{Provider: p.Provider, Reason: "malformed lines object"}
	}

	var quotes []models.MarketQuote

	if ml := body.Moneyline; ml != nil && ml.Home != nil && ml.Away != nil {
		homePrice, homeOK := priceFromUpstream(*ml.Home)
		awayPrice, awayOK := priceFromUpstream(*ml.Away)
		if homeOK && awayOK {
			quotes = append(quotes,
				newQuote(p, models.MarketMoneyline, models.SideHome, homePrice, nil, observedAt),
				newQuote(p, models.MarketMoneyline, models.SideAway, awayPrice, nil, observedAt),
			)
			if ml.Draw != nil {
				if price, ok := priceFromUpstream(*ml.Draw); ok {
					quotes = append(quotes, newQuote(p, models.MarketMoneyline, models.SideDraw, price, nil, observedAt))
				}
			}
		}
	}

	if sp := body.Spread; sp != nil && sp.Home != nil && sp.Away != nil {
		homeLine, awayLine, err := spreadLines(p.Provider, sp)
		if err != nil {
			return nil, err
		}
		if homeLine != nil {
			homePrice, homeOK := priceFromUpstream(*sp.Home)
			awayPrice, awayOK := priceFromUpstream(*sp.Away)
			if homeOK && awayOK {
				quotes = append(quotes,
					newQuote(p, models.MarketSpread, models.SideHome, homePrice, homeLine, observedAt),
					newQuote(p, models.MarketSpread, models.SideAway, awayPrice, awayLine, observedAt),
				)
			}
		}
	}

	if tot := body.Total; tot != nil && tot.Line != nil && tot.Over != nil && tot.Under != nil {
		overPrice, overOK := priceFromUpstream(*tot.Over)
		underPrice, underOK := priceFromUpstream(*tot.Under)
		if overOK && underOK {
			quotes = append(quotes,
				newQuote(p, models.MarketTotal, models.SideOver, overPrice, tot.Line, observedAt),
				newQuote(p, models.MarketTotal, models.SideUnder, underPrice, tot.Line, observedAt),
			)
		}
	}

	return quotes, nil
}

// spreadLines resolves the home and away lines from a flat spread object.
// When the feed publishes both sides they must negate each other; when it
// publishes only one line it is the home line and the away line is derived.
// No line at all means the market is omitted (nil, nil).
func spreadLines(provider string, sp *flatSpread) (*float64, *float64, error) {
	switch {
	case sp.HomeLine != nil && sp.AwayLine != nil:
		if math.Abs(*sp.HomeLine+*sp.AwayLine) > lineEpsilon {
			return nil, nil, &oddserr.NormalizationError{
				Provider: provider,
				Reason:   "inconsistent spread lines: home line is not the negated away line",
			}
		}
		return sp.HomeLine, sp.AwayLine, nil
	case sp.HomeLine != nil:
		away := -*sp.HomeLine
		return sp.HomeLine, &away, nil
	case sp.Line != nil:
		away := -*sp.Line
		return sp.Line, &away, nil
	default:
		return nil, nil, nil
	}
}

func newQuote(p *models.ProviderPayload, market models.Market, side models.Side, price int, line *float64, observedAt time.Time) models.MarketQuote {
	var lineCopy *float64
	if line != nil {
		v := *line
		lineCopy = &v
	}
	return models.MarketQuote{
		Provider:   p.Provider,
		EventID:    p.EventID,
		Market:     market,
		Side:       side,
		Price:      price,
		Line:       lineCopy,
		ObservedAt: observedAt,
	}
}
