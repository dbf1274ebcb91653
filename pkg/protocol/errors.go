package protocol

// Error codes carried in ErrorShape.Code and in failed run results.
const (
	ErrInvalidRequest    = "INVALID_REQUEST"
	ErrNotFound          = "NOT_FOUND"
	ErrUnavailable       = "UNAVAILABLE"
	ErrElementNotFound   = "ELEMENT_NOT_FOUND"
	ErrTabLoadTimeout    = "TAB_LOAD_TIMEOUT"
	ErrDebugAttachFailed = "DEBUG_ATTACH_FAILED"
	ErrDebugDetachFailed = "DEBUG_DETACH_FAILED"
	ErrStepTypeUnknown   = "STEP_TYPE_UNKNOWN"
	ErrConditionFailed   = "CONDITION_FAILED"
	ErrTimeout           = "TIMEOUT"
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrRateLimited       = "RATE_LIMITED"
	ErrInternal          = "INTERNAL"
)
