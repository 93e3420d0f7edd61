package pricing

import (
	"strings"

	"go.uber.org/zap"
)

// Rate holds the per-1000-unit dollar rates for one pricing family.
type Rate struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

// Family groups model identifiers that share a rate card. Matching is by
// case-sensitive substring against Token.
type Family struct {
	Name          string
	Token         string
	Rate          Rate
	ContextWindow int
}

// Match tags how a lookup resolved.
type Match string

const (
	MatchExact    Match = "exact"
	MatchFallback Match = "fallback"
)

// Lookup describes the outcome of a rate lookup, so that fallback pricing
// is observable rather than silent.
type Lookup struct {
	Family string
	Match  Match
}

// DefaultFamilyName is the family every unrecognized model identifier
// resolves to.
const DefaultFamilyName = "sonnet"

// Table is an immutable set of pricing families. Build one at startup and
// inject it; there is no global table.
type Table struct {
	families []Family
	logger   *zap.Logger
}

// NewTable builds a pricing table from the given families. The set must
// contain a family named DefaultFamilyName; families are matched in the
// order given. A nil logger disables fallback logging.
func NewTable(families []Family, logger *zap.Logger) *Table {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Table{families: families, logger: logger}
}

// DefaultTable returns a table with the embedded rate card.
func DefaultTable(logger *zap.Logger) *Table {
	return NewTable(DefaultFamilies(), logger)
}

// DefaultFamilies returns the embedded rate card. Rates are dollars per
// 1000 units.
func DefaultFamilies() []Family {
	return []Family{
		{
			Name:          "haiku",
			Token:         "haiku",
			Rate:          Rate{Input: 0.001, Output: 0.005},
			ContextWindow: 200000,
		},
		{
			Name:          "sonnet",
			Token:         "sonnet",
			Rate:          Rate{Input: 0.003, Output: 0.015},
			ContextWindow: 200000,
		},
		{
			Name:          "opus",
			Token:         "opus",
			Rate:          Rate{Input: 0.015, Output: 0.075},
			ContextWindow: 200000,
		},
	}
}

// RateFor resolves the rate card for a model identifier. Lookups never
// fail: an identifier that matches no family token resolves to the default
// family, tagged MatchFallback and logged so mispricing stays visible.
func (t *Table) RateFor(modelID string) (Rate, Lookup) {
	for _, f := range t.families {
		if strings.Contains(modelID, f.Token) {
			return f.Rate, Lookup{Family: f.Name, Match: MatchExact}
		}
	}

	def := t.family(DefaultFamilyName)
	t.logger.Warn("unknown model, using default pricing family",
		zap.String("model", modelID),
		zap.String("family", def.Name),
	)
	return def.Rate, Lookup{Family: def.Name, Match: MatchFallback}
}

// Cost computes the dollar cost of a request. Pure; rates are per 1000
// units.
func (t *Table) Cost(modelID string, inputUnits, outputUnits int64) float64 {
	rate, _ := t.RateFor(modelID)
	return float64(inputUnits)/1000.0*rate.Input + float64(outputUnits)/1000.0*rate.Output
}

// FamilyFor returns the resolved family name for a model identifier.
func (t *Table) FamilyFor(modelID string) Lookup {
	_, lookup := t.RateFor(modelID)
	return lookup
}

// CheapestFamily returns the family with the lowest blended rate.
func (t *Table) CheapestFamily() Family {
	best := t.families[0]
	for _, f := range t.families[1:] {
		if blended(f.Rate) < blended(best.Rate) {
			best = f
		}
	}
	return best
}

// CostliestFamily returns the family with the highest blended rate.
func (t *Table) CostliestFamily() Family {
	best := t.families[0]
	for _, f := range t.families[1:] {
		if blended(f.Rate) > blended(best.Rate) {
			best = f
		}
	}
	return best
}

// RelativeCost returns a family's blended rate as a fraction of the
// costliest family's. The costliest family is 1.0.
func (t *Table) RelativeCost(name string) float64 {
	top := blended(t.CostliestFamily().Rate)
	if top == 0 {
		return 0
	}
	return blended(t.family(name).Rate) / top
}

func (t *Table) family(name string) Family {
	for _, f := range t.families {
		if f.Name == name {
			return f
		}
	}
	return t.families[0]
}

func blended(r Rate) float64 {
	return r.Input + r.Output
}
