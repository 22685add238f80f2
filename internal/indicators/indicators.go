// Package indicators implements technical indicators as pure functions over
// ordered OHLCV series. Outputs with insufficient history are explicitly
// invalid, never zero.
package indicators

import (
	"math"

	"github.com/sawpanic/equityrun/internal/domain"
)

// Value is an indicator output that may be undefined when the series is too
// short for the lookback.
type Value struct {
	V     float64
	Valid bool
}

func defined(v float64) Value { return Value{V: v, Valid: true} }

// undefined is the zero Value.
var undefined = Value{}

// Closes extracts close prices from a bar series.
func Closes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// SMA returns the simple mean of the last n values.
func SMA(values []float64, n int) Value {
	if n <= 0 || len(values) < n {
		return undefined
	}
	sum := 0.0
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return defined(sum / float64(n))
}

// EMASeries returns the exponential moving average series with alpha
// 2/(n+1), seeded with SMA(n). Entries before the seed are invalid.
func EMASeries(values []float64, n int) []Value {
	out := make([]Value, len(values))
	if n <= 0 || len(values) < n {
		return out
	}
	seed := 0.0
	for _, v := range values[:n] {
		seed += v
	}
	seed /= float64(n)
	out[n-1] = defined(seed)

	alpha := 2.0 / float64(n+1)
	prev := seed
	for i := n; i < len(values); i++ {
		prev = alpha*values[i] + (1-alpha)*prev
		out[i] = defined(prev)
	}
	return out
}

// EMA returns the latest EMA(n) value.
func EMA(values []float64, n int) Value {
	series := EMASeries(values, n)
	if len(series) == 0 {
		return undefined
	}
	return series[len(series)-1]
}

// RSISeries computes the Wilder-smoothed relative strength index.
func RSISeries(closes []float64, period int) []Value {
	out := make([]Value, len(closes))
	if period <= 0 || len(closes) < period+1 {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = defined(rsiFrom(avgGain, avgLoss))

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = defined(rsiFrom(avgGain, avgLoss))
	}
	return out
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// RSI returns the latest RSI(period) value.
func RSI(closes []float64, period int) Value {
	series := RSISeries(closes, period)
	if len(series) == 0 {
		return undefined
	}
	return series[len(series)-1]
}

// MACDResult carries the MACD line, signal line and histogram series.
type MACDResult struct {
	MACD      []Value
	Signal    []Value
	Histogram []Value
}

// MACD computes MACD(fast, slow, signal) over the close series.
func MACD(closes []float64, fast, slow, signalN int) MACDResult {
	res := MACDResult{
		MACD:      make([]Value, len(closes)),
		Signal:    make([]Value, len(closes)),
		Histogram: make([]Value, len(closes)),
	}
	fastEMA := EMASeries(closes, fast)
	slowEMA := EMASeries(closes, slow)

	// MACD line is defined once both EMAs are; the signal EMA is seeded over
	// the first signalN defined MACD values.
	macdVals := make([]float64, 0, len(closes))
	macdIdx := make([]int, 0, len(closes))
	for i := range closes {
		if fastEMA[i].Valid && slowEMA[i].Valid {
			v := fastEMA[i].V - slowEMA[i].V
			res.MACD[i] = defined(v)
			macdVals = append(macdVals, v)
			macdIdx = append(macdIdx, i)
		}
	}
	signalSeries := EMASeries(macdVals, signalN)
	for j, idx := range macdIdx {
		if signalSeries[j].Valid {
			res.Signal[idx] = signalSeries[j]
			res.Histogram[idx] = defined(res.MACD[idx].V - signalSeries[j].V)
		}
	}
	return res
}

// trueRange computes the Wilder true range for bar i (i >= 1).
func trueRange(bars []domain.Bar, i int) float64 {
	tr := bars[i].High - bars[i].Low
	if hc := math.Abs(bars[i].High - bars[i-1].Close); hc > tr {
		tr = hc
	}
	if lc := math.Abs(bars[i].Low - bars[i-1].Close); lc > tr {
		tr = lc
	}
	return tr
}

// ATR returns the Wilder-smoothed average true range.
func ATR(bars []domain.Bar, period int) Value {
	if period <= 0 || len(bars) < period+1 {
		return undefined
	}
	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += trueRange(bars, i)
	}
	atr /= float64(period)
	for i := period + 1; i < len(bars); i++ {
		atr = (atr*float64(period-1) + trueRange(bars, i)) / float64(period)
	}
	return defined(atr)
}

// ADXResult carries ADX and the directional indices behind it.
type ADXResult struct {
	ADX     Value
	PlusDI  Value
	MinusDI Value
}

// ADX computes the Wilder average directional index.
func ADX(bars []domain.Bar, period int) ADXResult {
	// DX needs period TRs, ADX needs period DXs on top.
	if period <= 0 || len(bars) < 2*period+1 {
		return ADXResult{}
	}

	var smTR, smPlusDM, smMinusDM float64
	dx := make([]float64, 0, len(bars))
	var plusDI, minusDI float64

	for i := 1; i < len(bars); i++ {
		upMove := bars[i].High - bars[i-1].High
		downMove := bars[i-1].Low - bars[i].Low
		plusDM, minusDM := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}
		tr := trueRange(bars, i)

		if i <= period {
			smTR += tr
			smPlusDM += plusDM
			smMinusDM += minusDM
			if i < period {
				continue
			}
		} else {
			smTR = smTR - smTR/float64(period) + tr
			smPlusDM = smPlusDM - smPlusDM/float64(period) + plusDM
			smMinusDM = smMinusDM - smMinusDM/float64(period) + minusDM
		}

		if smTR == 0 {
			dx = append(dx, 0)
			continue
		}
		plusDI = 100 * smPlusDM / smTR
		minusDI = 100 * smMinusDM / smTR
		sum := plusDI + minusDI
		if sum == 0 {
			dx = append(dx, 0)
			continue
		}
		dx = append(dx, 100*math.Abs(plusDI-minusDI)/sum)
	}

	if len(dx) < period {
		return ADXResult{}
	}
	adx := 0.0
	for _, v := range dx[:period] {
		adx += v
	}
	adx /= float64(period)
	for _, v := range dx[period:] {
		adx = (adx*float64(period-1) + v) / float64(period)
	}
	return ADXResult{ADX: defined(adx), PlusDI: defined(plusDI), MinusDI: defined(minusDI)}
}

// OBV returns the cumulative on-balance volume series. Defined from the
// first bar (seeded at zero).
func OBV(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		switch {
		case bars[i].Close > bars[i-1].Close:
			out[i] = out[i-1] + bars[i].Volume
		case bars[i].Close < bars[i-1].Close:
			out[i] = out[i-1] - bars[i].Volume
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// VWAP returns the running volume-weighted average price over the whole
// series. For intraday use pass a single session's bars (VWAP resets daily).
func VWAP(bars []domain.Bar) Value {
	var pv, vol float64
	for _, b := range bars {
		typical := (b.High + b.Low + b.Close) / 3
		pv += typical * b.Volume
		vol += b.Volume
	}
	if vol == 0 {
		return undefined
	}
	return defined(pv / vol)
}

// SessionVWAP computes VWAP over only the bars sharing the last bar's
// exchange date, implementing the daily reset.
func SessionVWAP(bars []domain.Bar) Value {
	if len(bars) == 0 {
		return undefined
	}
	last := bars[len(bars)-1].TS
	y, m, d := last.Date()
	start := len(bars) - 1
	for start > 0 {
		py, pm, pd := bars[start-1].TS.Date()
		if py != y || pm != m || pd != d {
			break
		}
		start--
	}
	return VWAP(bars[start:])
}

// MFI computes the money flow index over the given period.
func MFI(bars []domain.Bar, period int) Value {
	if period <= 0 || len(bars) < period+1 {
		return undefined
	}
	var positive, negative float64
	for i := len(bars) - period; i < len(bars); i++ {
		typical := (bars[i].High + bars[i].Low + bars[i].Close) / 3
		prevTypical := (bars[i-1].High + bars[i-1].Low + bars[i-1].Close) / 3
		flow := typical * bars[i].Volume
		if typical > prevTypical {
			positive += flow
		} else if typical < prevTypical {
			negative += flow
		}
	}
	if negative == 0 {
		return defined(100)
	}
	ratio := positive / negative
	return defined(100 - 100/(1+ratio))
}

// ROC returns the n-bar rate of change of the close, in percent.
func ROC(closes []float64, n int) Value {
	if n <= 0 || len(closes) < n+1 {
		return undefined
	}
	base := closes[len(closes)-1-n]
	if base == 0 {
		return undefined
	}
	return defined((closes[len(closes)-1] - base) / base * 100)
}

// BollingerBands carries the SMA middle band and the ±k·stdev envelope.
type BollingerBands struct {
	Middle Value
	Upper  Value
	Lower  Value
}

// Bollinger computes n-period bands at k standard deviations.
func Bollinger(closes []float64, n int, k float64) BollingerBands {
	mid := SMA(closes, n)
	if !mid.Valid {
		return BollingerBands{}
	}
	variance := 0.0
	for _, v := range closes[len(closes)-n:] {
		d := v - mid.V
		variance += d * d
	}
	stdev := math.Sqrt(variance / float64(n))
	return BollingerBands{
		Middle: mid,
		Upper:  defined(mid.V + k*stdev),
		Lower:  defined(mid.V - k*stdev),
	}
}

// RegressionSlope fits a least-squares line over the last n values and
// returns (slope, r2). Used for the monthly direction sub-score.
func RegressionSlope(values []float64, n int) (Value, Value) {
	if n <= 1 || len(values) < n {
		return undefined, undefined
	}
	window := values[len(values)-n:]
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range window {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return undefined, undefined
	}
	slope := (fn*sumXY - sumX*sumY) / denom

	meanY := sumY / fn
	var ssTot, ssRes float64
	intercept := (sumY - slope*sumX) / fn
	for i, y := range window {
		fit := intercept + slope*float64(i)
		ssRes += (y - fit) * (y - fit)
		ssTot += (y - meanY) * (y - meanY)
	}
	r2 := 0.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}
	return defined(slope), defined(r2)
}
