package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these so callers can use errors.Is.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInvalidAPIKeys       = errors.New("invalid API keys or permissions")

	// Sync Errors
	ErrQuotaExceeded      = errors.New("daily sync quota exceeded")
	ErrSyncInProgress     = errors.New("a sync is already running for this account")
	ErrNoCheckpoint       = errors.New("no sync checkpoint to resume")
	ErrCheckpointCorrupt  = errors.New("sync checkpoint is corrupt or incomplete")
	ErrNoSymbolsProcessed = errors.New("no symbols were processed successfully")

	// Aggregation Errors
	ErrLifecycleIncomplete = errors.New("lifecycle is not complete")
	ErrLifecycleNoFills    = errors.New("lifecycle has no entry or exit fills")
	ErrPositionFlip        = errors.New("lifecycle exit quantity overshoots entry quantity")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
	ErrDeleteFailed = errors.New("database delete failed")
)

// IsAccountLevel reports whether err must abort a whole run rather than be recovered
// per symbol or per lifecycle.
func IsAccountLevel(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed) ||
		errors.Is(err, ErrInvalidAPIKeys) ||
		errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrNoSymbolsProcessed)
}
