package news

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/equityrun/internal/domain"
)

func TestTagCatalystsTiers(t *testing.T) {
	cases := []struct {
		name  string
		title string
		tier  domain.CatalystTier
	}{
		{"critical merger", "ACME agrees to merger with Global Corp", domain.CatalystCritical},
		{"critical fda", "FDA approval granted for new therapy", domain.CatalystCritical},
		{"high earnings", "ACME earnings beat estimates", domain.CatalystHigh},
		{"high quarter", "Q3 revenue tops forecasts", domain.CatalystHigh},
		{"medium dividend", "Board declares special dividend", domain.CatalystMedium},
		{"none", "ACME opens new office in Austin", domain.CatalystNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, tier := TagCatalysts(tc.title, "")
			assert.Equal(t, tc.tier, tier)
		})
	}
}

func TestTagCatalystsHighestTierWins(t *testing.T) {
	tags, tier := TagCatalysts("Merger announced alongside dividend hike and Q2 guidance", "")
	assert.Equal(t, domain.CatalystCritical, tier)
	assert.Contains(t, tags, "merger")
	assert.Contains(t, tags, "dividend")
	assert.Contains(t, tags, "guidance")
}

func TestTagCatalystsWholeWordOnly(t *testing.T) {
	// "sq1" must not match "q1"; matching is whole-token.
	_, tier := TagCatalysts("Block SQ1 platform update", "")
	assert.Equal(t, domain.CatalystNone, tier)

	_, tier = TagCatalysts("Q1 results due next week", "")
	assert.Equal(t, domain.CatalystHigh, tier)
}

func TestTagCatalystsBodyCounts(t *testing.T) {
	tags, tier := TagCatalysts("Company update", "The company filed for chapter 11 protection today.")
	assert.Equal(t, domain.CatalystCritical, tier)
	assert.Contains(t, tags, "chapter 11")
}

func TestPriorityForTier(t *testing.T) {
	assert.Equal(t, domain.PriorityCritical, PriorityForTier(domain.CatalystCritical))
	assert.Equal(t, domain.PriorityHigh, PriorityForTier(domain.CatalystHigh))
	assert.Equal(t, domain.PriorityMedium, PriorityForTier(domain.CatalystMedium))
	assert.Equal(t, domain.PriorityLow, PriorityForTier(domain.CatalystNone))
}
