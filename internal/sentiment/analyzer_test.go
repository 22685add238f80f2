package sentiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/domain"
)

func TestScoreBullishText(t *testing.T) {
	a := New()
	s := a.Score("Shares surge after record earnings beat; strong growth and raised guidance boost confidence. The rally accelerated on robust momentum and an upgrade.")

	assert.Greater(t, s.Polarity, 0.15)
	assert.Equal(t, domain.LabelBullish, s.Label)
	assert.Greater(t, s.Confidence, 0.0)
}

func TestScoreBearishText(t *testing.T) {
	a := New()
	s := a.Score("Stock plunges on bankruptcy fears; weak results, missed guidance and a downgrade triggered a selloff. Losses deepen as concerns mount over the investigation.")

	assert.Less(t, s.Polarity, -0.15)
	assert.Equal(t, domain.LabelBearish, s.Label)
}

func TestScoreNeutralText(t *testing.T) {
	a := New()
	s := a.Score("The company held its annual meeting on Tuesday in Chicago.")

	assert.Equal(t, domain.LabelNeutral, s.Label)
	assert.InDelta(t, 0.0, s.Polarity, 0.15)
}

func TestConfidenceRequiresAgreementAndLength(t *testing.T) {
	a := New()

	// Mixed signals: general lexicon bullish, intensity lexicon bearish.
	mixed := a.Score("strong gains but a bearish crash and plunge with losses")
	aligned := a.Score("strong gains with a bullish surge and rally winning record momentum")
	assert.Greater(t, aligned.Confidence, mixed.Confidence)

	// Empty text has zero confidence.
	empty := a.Score("")
	assert.Equal(t, 0.0, empty.Confidence)
}

func TestSocialComponentShiftsPolarity(t *testing.T) {
	a := New()
	text := "Quarterly results were released this morning."

	without := a.Score(text)
	with := a.ScoreWithSocial(text, []Post{
		{Text: "huge bullish surge, rally winning", Engagement: 500},
		{Text: "great momentum", Engagement: 50},
	})
	assert.Greater(t, with.Polarity, without.Polarity)
}

func TestEnsembleWeightsAreFixed(t *testing.T) {
	a := New()

	// "strong" hits the general lexicon, "surge" the intensity lexicon and
	// "buyback" the finance dictionary, each reading +1. With no posts the
	// social term is 0, so the blend is 0.40 + 0.30 + 0.20; the missing
	// social weight is never redistributed.
	s := a.Score("strong surge buyback")
	assert.InDelta(t, 0.90, s.Polarity, 1e-9)
	assert.Equal(t, domain.LabelBullish, s.Label)

	// A fully bullish social component supplies the remaining 0.10.
	full := a.ScoreWithSocial("strong surge buyback", []Post{{Text: "rally momentum", Engagement: 10}})
	assert.InDelta(t, 1.0, full.Polarity, 1e-9)
}

func TestEngagementWeighting(t *testing.T) {
	a := New()
	// A heavily-engaged bearish post should outweigh a barely-seen bullish one.
	p := a.socialPolarity([]Post{
		{Text: "crash selloff plunge bearish", Engagement: 1000},
		{Text: "rally surge bullish", Engagement: 1},
	})
	assert.Less(t, p, 0.0)
}

func TestLabelMapping(t *testing.T) {
	assert.Equal(t, domain.LabelBullish, domain.LabelFor(0.15))
	assert.Equal(t, domain.LabelBearish, domain.LabelFor(-0.15))
	assert.Equal(t, domain.LabelNeutral, domain.LabelFor(0.1))
	assert.Equal(t, domain.LabelNeutral, domain.LabelFor(-0.1))
}

func TestAgreement(t *testing.T) {
	assert.InDelta(t, 1.0, agreement([]float64{0.5, 0.3, 0.2}), 1e-9, "all positive")
	assert.InDelta(t, 1.0, agreement([]float64{-0.5, -0.3}), 1e-9, "all negative agree too")
	assert.InDelta(t, 0.0, agreement([]float64{0.5, -0.5}), 1e-9, "balanced conflict")
	assert.Equal(t, 0.0, agreement([]float64{0, 0, 0}), "no signal")
}

func TestTokenizeKeepsCompounds(t *testing.T) {
	tokens := Tokenize("Guidance-raise announced! Q3, results.")
	require.Contains(t, tokens, "guidance-raise")
	require.Contains(t, tokens, "q3")
}

func TestScoreIsPure(t *testing.T) {
	a := New()
	text := "record earnings beat with strong growth"
	assert.Equal(t, a.Score(text), a.Score(text))
}
