// Package cost holds the per-skill pricing table for metered marketplace
// calls. Every remote skill invocation is charged at a flat USD rate and
// recorded as an expense at that rate.
package cost

// Skill names as they appear in the pricing table and expense rows.
const (
	SkillBalance   = "balance"
	SkillPrice     = "price"
	SkillFund      = "fund"
	SkillChat      = "chat"
	SkillTrade     = "trade"
	SkillBroadcast = "broadcast"
	SkillEnrich    = "enrich"
)

// Rates maps a skill name to its flat per-call cost in USD.
type Rates map[string]float64

// DefaultRates returns the marketplace's published per-call pricing.
func DefaultRates() Rates {
	return Rates{
		SkillBalance:   0.01,
		SkillPrice:     0.01,
		SkillFund:      0.01,
		SkillChat:      0.01,
		SkillTrade:     0.01,
		SkillBroadcast: 0.01,
		SkillEnrich:    0.01,
	}
}

// For returns the per-call cost for a skill. Unknown skills cost zero so an
// unpriced call never fabricates an expense.
func (r Rates) For(skill string) float64 {
	return r[skill]
}

// Merge overlays non-zero overrides onto r, returning a new table.
func (r Rates) Merge(overrides map[string]float64) Rates {
	merged := make(Rates, len(r)+len(overrides))
	for k, v := range r {
		merged[k] = v
	}
	for k, v := range overrides {
		if v > 0 {
			merged[k] = v
		}
	}
	return merged
}
