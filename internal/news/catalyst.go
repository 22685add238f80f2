package news

import (
	"strings"

	"github.com/sawpanic/equityrun/internal/domain"
)

// Catalyst keyword groups. A hit tags the article and raises its tier to the
// highest matching group. Matching runs over the lowercased title+body.
var catalystGroups = []struct {
	tier     domain.CatalystTier
	keywords []string
}{
	{domain.CatalystCritical, []string{
		"bankruptcy", "chapter 11", "merger", "acquisition", "buyout",
		"takeover", "fda approval", "fda clearance",
	}},
	{domain.CatalystHigh, []string{
		"earnings", "quarterly results", "q1", "q2", "q3", "q4",
		"guidance", "upgrade", "downgrade", "phase 2", "phase 3",
	}},
	{domain.CatalystMedium, []string{
		"dividend", "buyback", "ceo change", "8-k", "10-q", "10-k",
	}},
}

// TagCatalysts scans an article for catalyst keywords, returning the matched
// tags and the highest tier hit. Tier is CatalystNone with no hits.
func TagCatalysts(title, body string) ([]string, domain.CatalystTier) {
	text := strings.ToLower(title + "\n" + body)

	var tags []string
	best := domain.CatalystNone
	for _, group := range catalystGroups {
		for _, kw := range group.keywords {
			if !containsKeyword(text, kw) {
				continue
			}
			tags = append(tags, kw)
			if group.tier.Rank() > best.Rank() {
				best = group.tier
			}
		}
	}
	return tags, best
}

// containsKeyword matches whole tokens so "q1" does not fire inside "sq1".
// Multi-word keywords match as substrings since their spaces already bound
// the words.
func containsKeyword(text, kw string) bool {
	if strings.ContainsAny(kw, " -") {
		return strings.Contains(text, kw)
	}
	idx := 0
	for {
		i := strings.Index(text[idx:], kw)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(kw)
		beforeOK := start == 0 || isBoundary(text[start-1])
		afterOK := end == len(text) || isBoundary(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isBoundary(b byte) bool {
	return !(b >= 'a' && b <= 'z' || b >= '0' && b <= '9')
}

// PriorityForTier maps a catalyst tier to an alert priority.
func PriorityForTier(tier domain.CatalystTier) domain.Priority {
	switch tier {
	case domain.CatalystCritical:
		return domain.PriorityCritical
	case domain.CatalystHigh:
		return domain.PriorityHigh
	case domain.CatalystMedium:
		return domain.PriorityMedium
	default:
		return domain.PriorityLow
	}
}
