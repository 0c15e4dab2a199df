package fault

// Code is a member of the closed error taxonomy shared by every backend.
type Code string

const (
	// CodeInvalidRequest means the request was malformed or could not be routed.
	CodeInvalidRequest Code = "INVALID_REQUEST"
	// CodeAuthenticationFailed means the backend rejected the credentials.
	CodeAuthenticationFailed Code = "AUTHENTICATION_FAILED"
	// CodeInsufficientBalance means the account cannot pay for the send.
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	// CodeTemplateNotFound means the referenced template does not exist.
	CodeTemplateNotFound Code = "TEMPLATE_NOT_FOUND"
	// CodeRateLimitExceeded means a local or remote rate limit was hit.
	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"
	// CodeNetworkError means the transport failed before a response arrived.
	CodeNetworkError Code = "NETWORK_ERROR"
	// CodeNetworkTimeout means the call did not complete in time.
	CodeNetworkTimeout Code = "NETWORK_TIMEOUT"
	// CodeNetworkServiceUnavailable means the backend is known to be unavailable.
	CodeNetworkServiceUnavailable Code = "NETWORK_SERVICE_UNAVAILABLE"
	// CodeProviderError means the backend failed for a reason of its own.
	CodeProviderError Code = "PROVIDER_ERROR"
	// CodeMessageSendFailed means the backend accepted but could not deliver.
	CodeMessageSendFailed Code = "MESSAGE_SEND_FAILED"
	// CodeUnknownError is used when nothing more specific applies.
	CodeUnknownError Code = "UNKNOWN_ERROR"
)

var allCodes = []Code{
	CodeInvalidRequest,
	CodeAuthenticationFailed,
	CodeInsufficientBalance,
	CodeTemplateNotFound,
	CodeRateLimitExceeded,
	CodeNetworkError,
	CodeNetworkTimeout,
	CodeNetworkServiceUnavailable,
	CodeProviderError,
	CodeMessageSendFailed,
	CodeUnknownError,
}

// retryableCodes are the codes that are retryable unless an error says otherwise.
var retryableCodes = map[Code]bool{
	CodeNetworkError:              true,
	CodeNetworkTimeout:            true,
	CodeNetworkServiceUnavailable: true,
	CodeRateLimitExceeded:         true,
}

// Codes returns every code in the taxonomy in declaration order.
func Codes() []Code {
	out := make([]Code, len(allCodes))
	copy(out, allCodes)
	return out
}

// Valid reports whether c is a member of the taxonomy.
func (c Code) Valid() bool {
	for _, known := range allCodes {
		if c == known {
			return true
		}
	}
	return false
}

// String returns the wire form of the code.
func (c Code) String() string {
	return string(c)
}

// RetryableByDefault reports whether errors with this code are retryable
// when nothing else is known about them.
func (c Code) RetryableByDefault() bool {
	return retryableCodes[c]
}

// IsTransientStatus reports whether an HTTP status code from a backend
// indicates a condition that may clear on its own.
func IsTransientStatus(status int) bool {
	return status == 408 || status == 429 || (status >= 500 && status <= 599)
}
