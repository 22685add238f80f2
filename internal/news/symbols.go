package news

import (
	"regexp"
	"strings"

	"github.com/sawpanic/equityrun/internal/domain"
)

var tickerPattern = regexp.MustCompile(`\$?[A-Z]{1,5}\b`)

// Universe is the set of known tickers used to validate extraction hits.
type Universe map[domain.Symbol]struct{}

// NewUniverse builds a lookup set from a watchlist.
func NewUniverse(symbols []domain.Symbol) Universe {
	u := make(Universe, len(symbols))
	for _, s := range symbols {
		u[s] = struct{}{}
	}
	return u
}

// Contains reports membership.
func (u Universe) Contains(s domain.Symbol) bool {
	_, ok := u[s]
	return ok
}

// ExtractSymbols finds tickers mentioned in text, restricted to the universe.
// Cashtags ("$TSLA") always count; bare uppercase words count only when they
// are in the universe, which filters ordinary words like "CEO" and "IPO"
// unless someone actually lists them. Cashtag hits order first, then bare
// hits, each in first-mention order with no duplicates.
func ExtractSymbols(text string, universe Universe) []domain.Symbol {
	var cashtags, bare []domain.Symbol
	seen := make(map[domain.Symbol]bool)

	for _, m := range tickerPattern.FindAllString(text, -1) {
		isCashtag := strings.HasPrefix(m, "$")
		sym := domain.Symbol(strings.TrimPrefix(m, "$"))
		if !universe.Contains(sym) || seen[sym] {
			continue
		}
		seen[sym] = true
		if isCashtag {
			cashtags = append(cashtags, sym)
		} else {
			bare = append(bare, sym)
		}
	}
	return append(cashtags, bare...)
}

// PrimarySymbol returns the best single ticker for an article, preferring the
// first cashtag. Empty when nothing in the universe is mentioned.
func PrimarySymbol(text string, universe Universe) domain.Symbol {
	syms := ExtractSymbols(text, universe)
	if len(syms) == 0 {
		return ""
	}
	return syms[0]
}
