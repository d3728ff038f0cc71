package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown  ErrorCode = 1
	ErrCodeCanceled ErrorCode = 2

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeMissingParameter     ErrorCode = 102
	ErrCodeInvalidVersion       ErrorCode = 103
	ErrCodeInvalidInterval      ErrorCode = 104

	// Market data errors (700-799)
	ErrCodeTransport          ErrorCode = 700
	ErrCodeMalformedResponse  ErrorCode = 701
	ErrCodeTimeout            ErrorCode = 702
	ErrCodeInvalidProvider    ErrorCode = 703
	ErrCodeUnsupportedSymbol  ErrorCode = 704
	ErrCodeIncompatibleSource ErrorCode = 705

	// Scheduler errors (800-899)
	ErrCodeSchedulerRunning ErrorCode = 800
	ErrCodeSchedulerStopped ErrorCode = 801

	// Publishing errors (900-999)
	ErrCodePublishFailed ErrorCode = 900
)

// Category groups error codes by the range they belong to.
type Category string

const (
	CategoryGeneral    Category = "general"
	CategoryValidation Category = "validation"
	CategoryMarketData Category = "market_data"
	CategoryScheduler  Category = "scheduler"
	CategoryPublishing Category = "publishing"
)

// Category returns the range the code belongs to.
func (c ErrorCode) Category() Category {
	switch {
	case c >= 100 && c < 200:
		return CategoryValidation
	case c >= 700 && c < 800:
		return CategoryMarketData
	case c >= 800 && c < 900:
		return CategoryScheduler
	case c >= 900 && c < 1000:
		return CategoryPublishing
	default:
		return CategoryGeneral
	}
}
