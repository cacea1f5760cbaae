package protocol

// Error codes returned in webhook error bodies.
const (
	ErrInvalidRequest    = "INVALID_REQUEST"
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrForbidden         = "FORBIDDEN"
	ErrUnknownEvent      = "UNKNOWN_EVENT"
	ErrDuplicate         = "DUPLICATE"
	ErrResourceExhausted = "RESOURCE_EXHAUSTED"
	ErrUnavailable       = "UNAVAILABLE"
	ErrInternal          = "INTERNAL"
)
