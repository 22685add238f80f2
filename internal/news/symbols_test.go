package news

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/equityrun/internal/domain"
)

func testUniverse() Universe {
	return NewUniverse([]domain.Symbol{"AAPL", "TSLA", "NVDA", "F"})
}

func TestExtractSymbolsCashtagFirst(t *testing.T) {
	syms := ExtractSymbols("AAPL rallies while $TSLA slides on delivery miss", testUniverse())
	assert.Equal(t, []domain.Symbol{"TSLA", "AAPL"}, syms, "cashtags order before bare mentions")
}

func TestExtractSymbolsFiltersNonUniverse(t *testing.T) {
	syms := ExtractSymbols("CEO of NVDA talks AI with the SEC", testUniverse())
	assert.Equal(t, []domain.Symbol{"NVDA"}, syms, "CEO, AI, SEC not in universe")
}

func TestExtractSymbolsDedups(t *testing.T) {
	syms := ExtractSymbols("$F up; F recalls trucks; $F halted", testUniverse())
	assert.Equal(t, []domain.Symbol{"F"}, syms)
}

func TestPrimarySymbol(t *testing.T) {
	assert.Equal(t, domain.Symbol("TSLA"), PrimarySymbol("AAPL and $TSLA both moved", testUniverse()))
	assert.Equal(t, domain.Symbol(""), PrimarySymbol("Broad market drifts sideways", testUniverse()))
}
