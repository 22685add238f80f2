// Package sentiment scores free text in [-1,+1] with a weighted ensemble of
// two lexical-polarity engines, a finance keyword dictionary, and an optional
// engagement-weighted social component.
package sentiment

import (
	"math"
	"strings"
	"unicode"

	"github.com/sawpanic/equityrun/internal/domain"
)

// Ensemble weights. The weights are fixed: an absent social component
// contributes 0 rather than redistributing its share.
const (
	weightLex1    = 0.40
	weightLex2    = 0.30
	weightKeyword = 0.20
	weightSocial  = 0.10
)

// Post is a social mention with an engagement weight (likes + reposts or
// equivalent). Zero engagement still counts with weight 1.
type Post struct {
	Text       string
	Engagement float64
}

// Analyzer is stateless; the zero value is not usable, construct with New.
type Analyzer struct {
	lex1 Lexicon
	lex2 Lexicon
}

// New returns an analyzer with the built-in lexicons.
func New() *Analyzer {
	return &Analyzer{lex1: generalLexicon, lex2: intensityLexicon}
}

// Score rates a body of text with no social component.
func (a *Analyzer) Score(text string) domain.SentimentScore {
	return a.ScoreWithSocial(text, nil)
}

// ScoreWithSocial rates text blended with engagement-weighted social posts.
// With no posts the social term is zero; its weight is never redistributed.
func (a *Analyzer) ScoreWithSocial(text string, posts []Post) domain.SentimentScore {
	tokens := Tokenize(text)

	lex1Score, _ := a.lex1.Score(tokens)
	lex2Score, _ := a.lex2.Score(tokens)
	kwScore, _ := financeScore(tokens)
	socialScore := a.socialPolarity(posts)

	polarity := clamp(weightLex1*lex1Score+weightLex2*lex2Score+
		weightKeyword*kwScore+weightSocial*socialScore, -1, 1)

	components := []float64{lex1Score, lex2Score, kwScore}
	if len(posts) > 0 {
		components = append(components, socialScore)
	}

	confidence := lengthFactor(len(tokens)) * agreement(components)

	return domain.SentimentScore{
		Polarity:   polarity,
		Confidence: confidence,
		Label:      domain.LabelFor(polarity),
	}
}

// socialPolarity is the engagement-weighted mean polarity over posts.
func (a *Analyzer) socialPolarity(posts []Post) float64 {
	var sum, wsum float64
	for _, p := range posts {
		tokens := Tokenize(p.Text)
		lex1Score, _ := a.lex1.Score(tokens)
		lex2Score, _ := a.lex2.Score(tokens)
		polarity := (lex1Score + lex2Score) / 2
		w := p.Engagement
		if w < 1 {
			w = 1
		}
		sum += w * polarity
		wsum += w
	}
	if wsum == 0 {
		return 0
	}
	return sum / wsum
}

// lengthFactor saturates at 100 words.
func lengthFactor(nWords int) float64 {
	return math.Min(1, float64(nWords)/100)
}

// agreement measures sign coherence across component polarities: 1 when all
// non-zero components share a sign, 0 when their magnitudes cancel. It is the
// normalized projection of the component vector onto its own magnitudes.
func agreement(components []float64) float64 {
	var signed, total float64
	for _, c := range components {
		signed += sign(c) * c * c
		total += c * c
	}
	if total == 0 {
		return 0
	}
	return math.Abs(signed) / total
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Tokenize lowercases and splits on non-letter, non-digit runes. Hyphens are
// kept so compound finance terms like "guidance-raise" survive.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}
