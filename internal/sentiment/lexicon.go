package sentiment

// Lexicon is a polarity word list. Score counts positive and negative hits
// over a token stream and returns (pos-neg)/(pos+neg), or 0 with no hits.
type Lexicon struct {
	Name     string
	Positive map[string]struct{}
	Negative map[string]struct{}
}

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Score returns the lexicon polarity in [-1,+1] and the number of hits.
func (l Lexicon) Score(tokens []string) (float64, int) {
	pos, neg := 0, 0
	for _, tok := range tokens {
		if _, ok := l.Positive[tok]; ok {
			pos++
		}
		if _, ok := l.Negative[tok]; ok {
			neg++
		}
	}
	hits := pos + neg
	if hits == 0 {
		return 0, 0
	}
	return float64(pos-neg) / float64(hits), hits
}

// generalLexicon covers broad affect vocabulary.
var generalLexicon = Lexicon{
	Name: "general",
	Positive: wordSet(
		"good", "great", "excellent", "positive", "strong", "growth", "gain",
		"gains", "win", "winning", "success", "successful", "improve",
		"improved", "improving", "boost", "boosted", "record", "outperform",
		"beat", "beats", "exceed", "exceeded", "robust", "solid", "healthy",
		"optimistic", "confident", "momentum", "opportunity", "favorable",
	),
	Negative: wordSet(
		"bad", "poor", "negative", "weak", "weakness", "loss", "losses",
		"lose", "losing", "fail", "failed", "failure", "decline", "declined",
		"declining", "drop", "dropped", "fall", "fell", "miss", "missed",
		"concern", "concerns", "risk", "risks", "warning", "trouble",
		"pessimistic", "uncertain", "slowdown", "cut", "cuts", "disappointing",
	),
}

// intensityLexicon is a second, independent list weighted toward market
// action verbs; keeping two lists uncorrelated is what makes the ensemble
// agreement term meaningful.
var intensityLexicon = Lexicon{
	Name: "intensity",
	Positive: wordSet(
		"surge", "surges", "surged", "soar", "soars", "soared", "rally",
		"rallies", "rallied", "jump", "jumps", "jumped", "spike", "spiked",
		"climb", "climbed", "rebound", "rebounded", "breakout", "upside",
		"accelerate", "accelerating", "upgrade", "upgraded", "bullish",
	),
	Negative: wordSet(
		"plunge", "plunges", "plunged", "crash", "crashes", "crashed",
		"tumble", "tumbled", "slump", "slumped", "sink", "sank", "collapse",
		"collapsed", "selloff", "downside", "downgrade", "downgraded",
		"bearish", "freefall", "rout", "capitulation", "bloodbath",
	),
}

// financeKeywords is the finance-specific dictionary: bullish terms score +1,
// bearish terms -1, averaged over hits.
var financeBullish = wordSet(
	"buyback", "dividend", "acquisition", "merger", "approval", "partnership",
	"contract", "expansion", "guidance-raise", "raised", "profitability",
	"breakeven", "oversubscribed", "blockbuster", "patent",
)

var financeBearish = wordSet(
	"bankruptcy", "delisting", "dilution", "default", "investigation",
	"lawsuit", "recall", "restatement", "writedown", "layoffs", "insolvency",
	"fraud", "subpoena", "downgrade", "shortfall",
)

// financeScore averages +1/-1 over finance dictionary hits; 0 without hits.
func financeScore(tokens []string) (float64, int) {
	sum, hits := 0.0, 0
	for _, tok := range tokens {
		if _, ok := financeBullish[tok]; ok {
			sum++
			hits++
		}
		if _, ok := financeBearish[tok]; ok {
			sum--
			hits++
		}
	}
	if hits == 0 {
		return 0, 0
	}
	return sum / float64(hits), hits
}
