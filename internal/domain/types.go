package domain

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Symbol is a 1-6 character uppercase ticker. It is the identity key for
// everything downstream of ingestion.
type Symbol string

var symbolPattern = regexp.MustCompile(`^[A-Z]{1,6}$`)

// NormalizeSymbol uppercases and validates a raw ticker string.
func NormalizeSymbol(raw string) (Symbol, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if !symbolPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, raw)
	}
	return Symbol(s), nil
}

// Bar is one OHLCV record at a bar boundary in exchange time.
type Bar struct {
	Symbol Symbol    `json:"symbol" db:"symbol"`
	TS     time.Time `json:"ts" db:"ts"`
	Open   float64   `json:"open" db:"open"`
	High   float64   `json:"high" db:"high"`
	Low    float64   `json:"low" db:"low"`
	Close  float64   `json:"close" db:"close"`
	Volume float64   `json:"volume" db:"volume"`
}

// Validate checks the OHLC ordering invariant and non-negative volume.
func (b Bar) Validate() error {
	lo := b.Open
	if b.Close < lo {
		lo = b.Close
	}
	hi := b.Open
	if b.Close > hi {
		hi = b.Close
	}
	if b.Low > lo || b.High < hi {
		return fmt.Errorf("%w: %s %s OHLC out of order", ErrInvalidSeries, b.Symbol, b.TS.Format(time.RFC3339))
	}
	if b.Volume < 0 {
		return fmt.Errorf("%w: %s negative volume", ErrInvalidSeries, b.Symbol)
	}
	return nil
}

// ValidateSeries checks strictly increasing timestamps and per-bar invariants.
func ValidateSeries(bars []Bar) error {
	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return err
		}
		if i > 0 && !bars[i-1].TS.Before(b.TS) {
			return fmt.Errorf("%w: non-increasing ts at index %d", ErrInvalidSeries, i)
		}
	}
	return nil
}

// CatalystTier ranks how hard a news catalyst is expected to move price.
type CatalystTier string

const (
	CatalystCritical CatalystTier = "CRITICAL"
	CatalystHigh     CatalystTier = "HIGH"
	CatalystMedium   CatalystTier = "MEDIUM"
	CatalystNone     CatalystTier = ""
)

// Rank returns a numeric rank for scoring formulas (CRITICAL=3 .. none=0).
func (t CatalystTier) Rank() int {
	switch t {
	case CatalystCritical:
		return 3
	case CatalystHigh:
		return 2
	case CatalystMedium:
		return 1
	default:
		return 0
	}
}

// Article is a normalized news or social item. Symbol is empty for
// general-market articles.
type Article struct {
	ID           string         `json:"id" db:"id"`
	Symbol       Symbol         `json:"symbol,omitempty" db:"symbol"`
	Title        string         `json:"title" db:"title"`
	Body         string         `json:"body" db:"body"`
	Source       string         `json:"source" db:"source"`
	URL          string         `json:"url" db:"url"`
	PublishedAt  time.Time      `json:"published_at" db:"published_at"`
	FetchedAt    time.Time      `json:"fetched_at" db:"fetched_at"`
	Sentiment    SentimentScore `json:"sentiment"`
	CatalystTags []string       `json:"catalyst_tags,omitempty"`
	CatalystTier CatalystTier   `json:"catalyst_tier,omitempty"`
	Engagement   float64        `json:"engagement,omitempty"`
}

// ArticleID derives the dedup identity for an article: sha256 of the URL when
// one exists, otherwise sha256 of source|title|publishedAt.
func ArticleID(url, source, title string, publishedAt time.Time) string {
	if url != "" {
		return fmt.Sprintf("%x", sha256.Sum256([]byte(url)))
	}
	key := source + "|" + title + "|" + publishedAt.UTC().Format(time.RFC3339)
	return fmt.Sprintf("%x", sha256.Sum256([]byte(key)))
}

// SentimentLabel buckets polarity into a categorical call.
type SentimentLabel string

const (
	LabelBullish SentimentLabel = "bullish"
	LabelNeutral SentimentLabel = "neutral"
	LabelBearish SentimentLabel = "bearish"
)

// SentimentScore is the output of the sentiment ensemble.
type SentimentScore struct {
	Polarity   float64        `json:"polarity"`
	Confidence float64        `json:"confidence"`
	Label      SentimentLabel `json:"label"`
}

// LabelFor maps a polarity to its label (±0.15 thresholds).
func LabelFor(polarity float64) SentimentLabel {
	switch {
	case polarity >= 0.15:
		return LabelBullish
	case polarity <= -0.15:
		return LabelBearish
	default:
		return LabelNeutral
	}
}

// Recommendation is the categorical call derived from the composite score.
type Recommendation string

const (
	StrongBuy    Recommendation = "STRONG_BUY"
	Buy          Recommendation = "BUY"
	ModerateBuy  Recommendation = "MODERATE_BUY"
	Hold         Recommendation = "HOLD"
	ModerateSell Recommendation = "MODERATE_SELL"
	Sell         Recommendation = "SELL"
	StrongSell   Recommendation = "STRONG_SELL"
)

// Conviction is the qualitative strength tier behind a recommendation.
type Conviction string

const (
	ConvictionVeryHigh Conviction = "VERY_HIGH"
	ConvictionHigh     Conviction = "HIGH"
	ConvictionMedium   Conviction = "MEDIUM"
	ConvictionLow      Conviction = "LOW"
)

// ComponentScores holds the five weighted component scores, each in [0,100].
type ComponentScores struct {
	Trend      float64 `json:"trend" db:"trend"`
	Momentum   float64 `json:"momentum" db:"momentum"`
	Sentiment  float64 `json:"sentiment" db:"sentiment"`
	Divergence float64 `json:"divergence" db:"divergence"`
	Volume     float64 `json:"volume" db:"volume"`
}

// MonthlyScore is the composite signal for one symbol at one point in time.
type MonthlyScore struct {
	Symbol         Symbol          `json:"symbol" db:"symbol"`
	AsOf           time.Time       `json:"as_of" db:"as_of"`
	ScanKind       CandidateKind   `json:"scan_kind" db:"scan_kind"`
	Total          float64         `json:"total" db:"total"`
	Components     ComponentScores `json:"components"`
	Recommendation Recommendation  `json:"recommendation" db:"recommendation"`
	Conviction     Conviction      `json:"conviction" db:"conviction"`
	Entry          float64         `json:"entry,omitempty" db:"entry"`
	Stop           float64         `json:"stop,omitempty" db:"stop"`
	Target         float64         `json:"target,omitempty" db:"target"`
	RiskReward     float64         `json:"risk_reward,omitempty" db:"rr"`
	Confidence     float64         `json:"confidence" db:"confidence"`
	Reasons        []string        `json:"reasons,omitempty"`
}

// HasTradeParams reports whether entry/stop/target are populated.
func (m MonthlyScore) HasTradeParams() bool {
	return m.Entry > 0 && m.Stop > 0 && m.Target > 0
}

// CandidateKind tags which scanner produced a candidate.
type CandidateKind string

const (
	KindPremarketCatalyst CandidateKind = "PREMARKET_CATALYST"
	KindIntradayPump      CandidateKind = "INTRADAY_PUMP"
	KindIntradayExit      CandidateKind = "INTRADAY_EXIT"
	KindOpportunity       CandidateKind = "OPPORTUNITY"
)

// Candidate is a scanner's pre-dispatch signal.
type Candidate struct {
	Symbol     Symbol        `json:"symbol"`
	Kind       CandidateKind `json:"kind"`
	Score      float64       `json:"score"`
	Priority   Priority      `json:"priority"`
	Reasons    []string      `json:"reasons,omitempty"`
	DetectedAt time.Time     `json:"detected_at"`
	Payload    any           `json:"payload,omitempty"`
}

// Priority orders alert delivery and drop policy.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

// Rank returns a numeric rank, higher is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// Alert is a dispatched notification row. ID is the cooldown-bucketed dedup
// key, so two alerts for the same (symbol, kind) inside one cooldown window
// collapse to a single row. Score, Price, VolumeRatio, CatalystTags and
// DetectedAt feed the channel wire formats; they are not persisted columns.
type Alert struct {
	ID                string        `json:"id" db:"id"`
	Symbol            Symbol        `json:"symbol" db:"symbol"`
	Kind              CandidateKind `json:"kind" db:"kind"`
	Priority          Priority      `json:"priority" db:"priority"`
	Title             string        `json:"title" db:"title"`
	Body              string        `json:"body" db:"body"`
	Score             float64       `json:"score"`
	Price             float64       `json:"price,omitempty"`
	VolumeRatio       float64       `json:"volume_ratio,omitempty"`
	CatalystTags      []string      `json:"catalyst_tags,omitempty"`
	DetectedAt        time.Time     `json:"detected_at"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	ChannelsAttempted []string      `json:"channels_attempted"`
	ChannelsSucceeded []string      `json:"channels_succeeded"`
	AckAt             *time.Time    `json:"ack_at,omitempty" db:"ack_at"`
}

// AlertID derives the dedup key for (symbol, kind) within a cooldown bucket.
// The bucket index is createdAt's Unix time divided by the cooldown width, so
// the function is pure in its inputs.
func AlertID(symbol Symbol, kind CandidateKind, createdAt time.Time, cooldown time.Duration) string {
	bucket := int64(0)
	if cooldown > 0 {
		bucket = createdAt.Unix() / int64(cooldown.Seconds())
	} else {
		bucket = createdAt.Unix()
	}
	key := fmt.Sprintf("%s|%s|%d", symbol, kind, bucket)
	return fmt.Sprintf("%x", sha256.Sum256([]byte(key)))
}
