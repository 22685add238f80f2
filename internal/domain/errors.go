package domain

import "errors"

// Sentinel errors for the core error taxonomy. Callers branch with errors.Is;
// wrapping sites add symbol/source context with fmt.Errorf("...: %w", ...).
var (
	// Startup
	ErrConfigInvalid = errors.New("CONFIG_INVALID")

	// Recoverable per-call ingestion errors
	ErrNetwork       = errors.New("NETWORK")
	ErrRateLimited   = errors.New("RATE_LIMITED")
	ErrSymbolUnknown = errors.New("SYMBOL_UNKNOWN")
	ErrEmpty         = errors.New("EMPTY")

	// Scoring
	ErrInvalidSeries       = errors.New("INVALID_SERIES")
	ErrInsufficientHistory = errors.New("INSUFFICIENT_HISTORY")
	ErrInternal            = errors.New("INTERNAL")

	// Alert channels
	ErrChannelUnconfigured = errors.New("CHANNEL_UNCONFIGURED")
	ErrChannelTransient    = errors.New("CHANNEL_TRANSIENT")
	ErrChannelPermanent    = errors.New("CHANNEL_PERMANENT")

	// Rate limiter
	ErrRateCancelled = errors.New("RATE_CANCELLED")

	ErrInvalidSymbol = errors.New("invalid symbol")
)

// Recoverable reports whether an ingestion error may be retried or skipped
// without failing the tick.
func Recoverable(err error) bool {
	return errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrSymbolUnknown) ||
		errors.Is(err, ErrEmpty)
}
