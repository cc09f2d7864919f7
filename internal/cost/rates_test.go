package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultRates_CoverAllSkills(t *testing.T) {
	r := DefaultRates()
	for _, skill := range []string{
		SkillBalance, SkillPrice, SkillFund, SkillChat,
		SkillTrade, SkillBroadcast, SkillEnrich,
	} {
		assert.InDelta(t, 0.01, r.For(skill), 1e-9, skill)
	}
}

func TestRates_For_UnknownSkillIsFree(t *testing.T) {
	r := DefaultRates()
	assert.Zero(t, r.For("teleport"))
}

func TestRates_Merge(t *testing.T) {
	r := DefaultRates().Merge(map[string]float64{
		SkillChat: 0.05,
		"ignored": 0, // zero overrides are dropped
	})
	assert.InDelta(t, 0.05, r.For(SkillChat), 1e-9)
	assert.InDelta(t, 0.01, r.For(SkillBalance), 1e-9)
	assert.Zero(t, r.For("ignored"))

	// Original table untouched.
	assert.InDelta(t, 0.01, DefaultRates().For(SkillChat), 1e-9)
}
