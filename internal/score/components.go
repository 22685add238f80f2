package score

import (
	"math"
	"time"

	"github.com/sawpanic/equityrun/internal/domain"
	"github.com/sawpanic/equityrun/internal/indicators"
	"github.com/sawpanic/equityrun/internal/sentiment"
)

// Indicator lookbacks. These follow the common defaults and are not tunable;
// the scoring tables below are calibrated against them.
const (
	rsiPeriod      = 14
	adxPeriod      = 14
	atrPeriod      = 14
	mfiPeriod      = 14
	macdFast       = 12
	macdSlow       = 26
	macdSignal     = 9
	rocPeriod      = 30
	regressionBars = 21
	divergenceBars = 40
	vwapBars       = 20
)

// trendScore sums MA alignment (40), ADX strength (30) and monthly regression
// direction (30). Direction comes from the DIs; in a bearish regime the
// alignment test is mirrored so the component measures trend strength.
func trendScore(bars []domain.Bar) float64 {
	closes := indicators.Closes(bars)
	close := closes[len(closes)-1]

	sma20 := indicators.SMA(closes, 20)
	sma50 := indicators.SMA(closes, 50)
	sma200 := indicators.SMA(closes, 200)
	adx := indicators.ADX(bars, adxPeriod)

	bearish := adx.PlusDI.Valid && adx.MinusDI.V > adx.PlusDI.V

	gt := func(a, b indicators.Value) bool {
		if !a.Valid || !b.Valid {
			return false
		}
		if bearish {
			return a.V < b.V
		}
		return a.V > b.V
	}
	closeVal := indicators.Value{V: close, Valid: true}

	orderings := 0
	for _, ok := range []bool{
		gt(closeVal, sma20),
		gt(sma20, sma50),
		gt(sma50, sma200),
		gt(closeVal, sma200),
	} {
		if ok {
			orderings++
		}
	}
	alignment := 0.0
	switch {
	case orderings == 4:
		alignment = 40
	case orderings == 3:
		alignment = 25
	case gt(sma20, sma50):
		alignment = 15
	}

	strength := 0.0
	if adx.ADX.Valid {
		switch {
		case adx.ADX.V >= 50:
			strength = 30
		case adx.ADX.V >= 25:
			strength = 20
		case adx.ADX.V >= 15:
			strength = 10
		}
	}

	return alignment + strength + regressionPoints(closes, close)
}

// regressionPoints scores the 21-day regression slope: strongly positive 30,
// weakly positive 15, flat 10, negative 0. "Flat" is within ±0.05% of price
// per day.
func regressionPoints(closes []float64, lastClose float64) float64 {
	slope, r2 := indicators.RegressionSlope(closes, regressionBars)
	if !slope.Valid || lastClose == 0 {
		return 0
	}
	norm := slope.V / lastClose
	switch {
	case norm > 0.0005 && r2.V >= 0.3:
		return 30
	case norm > 0.0005:
		return 15
	case norm >= -0.0005:
		return 10
	default:
		return 0
	}
}

// momentumScore sums RSI (35), MACD histogram (35) and ROC(30) (30). RSI
// scoring favors healthy mid-range momentum over extremes.
func momentumScore(bars []domain.Bar) float64 {
	closes := indicators.Closes(bars)

	pts := 0.0
	if rsi := indicators.RSI(closes, rsiPeriod); rsi.Valid {
		switch v := rsi.V; {
		case v >= 40 && v <= 60:
			pts += 35
		case (v > 30 && v < 40) || (v > 60 && v < 70):
			pts += 25
		case (v >= 25 && v <= 30) || (v >= 70 && v <= 75):
			pts += 15
		}
	}

	macd := indicators.MACD(closes, macdFast, macdSlow, macdSignal)
	if n := len(macd.Histogram); n >= 2 && macd.Histogram[n-1].Valid && macd.Histogram[n-2].Valid {
		last, prev := macd.Histogram[n-1].V, macd.Histogram[n-2].V
		switch {
		case last > 0 && last > prev:
			pts += 35
		case last > 0:
			pts += 25
		case last > prev:
			pts += 15
		}
	}

	if roc := indicators.ROC(closes, rocPeriod); roc.Valid {
		switch v := roc.V; {
		case v >= 15:
			pts += 30
		case v >= 5:
			pts += 20
		case v >= -5:
			pts += 10
		}
	}
	return pts
}

// volumeScore sums volume trend (40), VWAP position (30) and MFI (30).
func volumeScore(bars []domain.Bar) float64 {
	pts := 0.0

	if ratio, ok := VolumeRatio(bars, 5, 20); ok {
		switch {
		case ratio >= 1.5:
			pts += 40
		case ratio >= 1.2:
			pts += 25
		case ratio >= 0.9:
			pts += 10
		}
	}

	close := bars[len(bars)-1].Close
	window := bars
	if len(window) > vwapBars {
		window = window[len(window)-vwapBars:]
	}
	if vwap := indicators.VWAP(window); vwap.Valid && vwap.V > 0 {
		dist := (close - vwap.V) / vwap.V
		switch {
		case dist > 0.01:
			pts += 30
		case dist > 0:
			pts += 20
		}
	}

	if mfi := indicators.MFI(bars, mfiPeriod); mfi.Valid {
		switch v := mfi.V; {
		case v >= 40 && v <= 60:
			pts += 30
		case v >= 20 && v <= 80:
			pts += 15
		}
	}
	return pts
}

// VolumeRatio returns avg(last short) / avg(last long) share volume.
func VolumeRatio(bars []domain.Bar, short, long int) (float64, bool) {
	if len(bars) < long || short <= 0 || long <= short {
		return 0, false
	}
	avg := func(n int) float64 {
		sum := 0.0
		for _, b := range bars[len(bars)-n:] {
			sum += b.Volume
		}
		return sum / float64(n)
	}
	longAvg := avg(long)
	if longAvg == 0 {
		return 0, false
	}
	return avg(short) / longAvg, true
}

// Divergence outcomes as fractions of a check's point budget.
const (
	divBullish = 1.0
	divNone    = 0.625
	divBearish = 0.0
)

// divergenceScore runs the price-vs-indicator divergence checks over the last
// 40 bars: RSI (40 pts), MACD histogram (30) and OBV (30).
func divergenceScore(bars []domain.Bar) float64 {
	window := bars
	if len(window) > divergenceBars {
		window = window[len(window)-divergenceBars:]
	}
	closes := indicators.Closes(bars)

	rsiSeries := indicators.RSISeries(closes, rsiPeriod)
	macd := indicators.MACD(closes, macdFast, macdSlow, macdSignal)
	obv := indicators.OBV(bars)

	offset := len(bars) - len(window)
	pick := func(vals []indicators.Value) ([]float64, []float64) {
		var price, ind []float64
		for i := range window {
			v := vals[offset+i]
			if !v.Valid {
				continue
			}
			price = append(price, window[i].Close)
			ind = append(ind, v.V)
		}
		return price, ind
	}

	priceRSI, indRSI := pick(rsiSeries)
	priceMACD, indMACD := pick(macd.Histogram)

	priceOBV := make([]float64, len(window))
	indOBV := make([]float64, len(window))
	for i := range window {
		priceOBV[i] = window[i].Close
		indOBV[i] = obv[offset+i]
	}

	return divergenceCheck(priceRSI, indRSI)*40 +
		divergenceCheck(priceMACD, indMACD)*30 +
		divergenceCheck(priceOBV, indOBV)*30
}

// divergenceCheck compares the price and indicator extremes between the two
// halves of the window. A lower price low with a higher indicator low is
// bullish; a higher price high with a lower indicator high is bearish.
// Fewer than 10 aligned points counts as no divergence.
func divergenceCheck(price, ind []float64) float64 {
	if len(price) < 10 {
		return divNone
	}
	half := len(price) / 2

	lo1, hi1 := argExtremes(price[:half])
	lo2, hi2 := argExtremes(price[half:])
	lo2 += half
	hi2 += half

	if price[lo2] < price[lo1] && ind[lo2] > ind[lo1] {
		return divBullish
	}
	if price[hi2] > price[hi1] && ind[hi2] < ind[hi1] {
		return divBearish
	}
	return divNone
}

func argExtremes(vals []float64) (lo, hi int) {
	for i, v := range vals {
		if v < vals[lo] {
			lo = i
		}
		if v > vals[hi] {
			hi = i
		}
	}
	return lo, hi
}

// sentimentScore blends a recency- and length-weighted news polarity (60%)
// with an engagement-weighted social polarity (40%), maps the result onto
// [0,100] and adds a saturating article-count boost. No data at all scores
// neutral 50 with zero confidence.
func sentimentScore(analyzer *sentiment.Analyzer, articles []domain.Article, posts []sentiment.Post, asOf time.Time) (score, confidence float64, hasData bool) {
	var components, weights []float64

	if len(articles) > 0 {
		components = append(components, newsPolarity(articles, asOf))
		weights = append(weights, 0.6)
	}
	if len(posts) > 0 {
		components = append(components, socialPolarity(analyzer, posts))
		weights = append(weights, 0.4)
	}
	if len(components) == 0 {
		return 50, 0, false
	}

	var p, wsum float64
	for i, w := range weights {
		p += w * components[i]
		wsum += w
	}
	p /= wsum

	score = 50*(p+1) + math.Min(10, math.Log10(1+float64(len(articles))))
	score = math.Max(0, math.Min(100, score))
	confidence = math.Min(1, float64(len(articles))/30)
	return score, confidence, true
}

// newsPolarity is the weighted mean article polarity with weight
// recency(age) * length_factor(body). Recency decays linearly to zero at 30
// days; length saturates at 500 characters. A batch whose weights all vanish
// falls back to the unweighted mean.
func newsPolarity(articles []domain.Article, asOf time.Time) float64 {
	var sum, wsum, plain float64
	for _, a := range articles {
		ageDays := asOf.Sub(a.PublishedAt).Hours() / 24
		recency := math.Max(0, 1-ageDays/30)
		length := math.Min(1, float64(len(a.Body))/500)
		w := recency * length
		sum += w * a.Sentiment.Polarity
		wsum += w
		plain += a.Sentiment.Polarity
	}
	if wsum == 0 {
		return plain / float64(len(articles))
	}
	return sum / wsum
}

// socialPolarity is the engagement-weighted mean post polarity. Zero
// engagement still counts with weight 1.
func socialPolarity(analyzer *sentiment.Analyzer, posts []sentiment.Post) float64 {
	var sum, wsum float64
	for _, p := range posts {
		w := math.Max(1, p.Engagement)
		sum += w * analyzer.Score(p.Text).Polarity
		wsum += w
	}
	return sum / wsum
}
