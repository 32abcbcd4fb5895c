package auth

import "errors"

// DefaultErrorMessage is what clients see when a failure has no safe,
// user-actionable message. Internal detail stays in logs and activity entries.
const DefaultErrorMessage = "An unexpected error occurred. Please try again."

// Domain failure conditions. These never carry provider detail; the flow
// engine logs the underlying error and attaches only the sentinel's message
// to the client-facing response.
var (
	ErrTokenMissing          = errors.New("connect token missing")
	ErrTokenInvalid          = errors.New("invalid connect token")
	ErrTokenExpired          = errors.New("connect token expired")
	ErrIntegrationDisabled   = errors.New("integration is disabled")
	ErrUnsupportedAuthScheme = errors.New("unsupported auth scheme")
	ErrMissingConfiguration  = errors.New("missing configuration fields")
	ErrCredentialsMissing    = errors.New("credentials missing or invalid")
	ErrTokenExchangeFailed   = errors.New("token exchange failed")
)

// clientMessages maps domain conditions to the exact text sent to clients.
// Anything not in this map falls back to DefaultErrorMessage.
var clientMessages = map[error]string{
	ErrTokenMissing:          "Connect token missing",
	ErrTokenInvalid:          "Invalid connect token",
	ErrTokenExpired:          "Connect token expired",
	ErrIntegrationDisabled:   "Integration is disabled",
	ErrUnsupportedAuthScheme: "Unsupported auth scheme",
	ErrMissingConfiguration:  "Missing configuration fields",
	ErrCredentialsMissing:    "Credentials missing or invalid",
}

// FlowError is the single client-facing error shape for authorization flows.
// Message is always safe to show; the wrapped error is not.
type FlowError struct {
	// Message is sanitized and safe for the end user.
	Message string
	// WSClientID and RedirectURL let the caller route the failure back to
	// whichever surface started the flow. Either may be empty.
	WSClientID  string
	RedirectURL string

	err error
}

func (e *FlowError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return e.Message
}

func (e *FlowError) Unwrap() error {
	return e.err
}

// newFlowError sanitizes err into a FlowError. Known domain conditions keep
// their mapped message; everything else collapses to DefaultErrorMessage.
func newFlowError(err error, wsClientID, redirectURL string) *FlowError {
	message := DefaultErrorMessage
	for sentinel, msg := range clientMessages {
		if errors.Is(err, sentinel) {
			message = msg
			break
		}
	}
	return &FlowError{
		Message:     message,
		WSClientID:  wsClientID,
		RedirectURL: redirectURL,
		err:         err,
	}
}
