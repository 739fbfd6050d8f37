package response

import "fmt"

// Kind is a machine-readable error classification surfaced to API callers,
// so the dashboards can branch on it without parsing messages
type Kind string

// Defining the error kinds surfaced at the API boundary
const (
	KindValidation    Kind = "VALIDATION_ERROR"
	KindForbidden     Kind = "FORBIDDEN"
	KindInvalidState  Kind = "INVALID_STATE"
	KindQuotaExceeded Kind = "QUOTA_EXCEEDED"
	KindNotFound      Kind = "NOT_FOUND"
	KindUnauthorized  Kind = "UNAUTHORIZED"
	KindBadRequest    Kind = "BAD_REQUEST"
	KindUnexpected    Kind = "UNEXPECTED"
)

type Error struct {
	StatusCode int         `json:"-"`
	Kind       Kind        `json:"kind"`
	Message    string      `json:"message"`
	Messages   []string    `json:"details,omitempty"`
	Result     interface{} `json:"result,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("HTTP %d (%s): %s", e.StatusCode, e.Kind, e.Message)
}

func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

func (e *Error) AddMessages(msgs ...string) *Error {
	e.Messages = append(e.Messages, msgs...)
	return e
}

func (e *Error) WithResult(result interface{}) *Error {
	e.Result = result
	return e
}

func makeError(status int, kind Kind) *Error {
	return &Error{
		StatusCode: status,
		Kind:       kind,
		Messages:   make([]string, 0),
	}
}

// -----------------------------------------------

func ErrUnexpected() *Error {
	return makeError(500, KindUnexpected).
		WithMessage("An unexpected error has occured")
}

func ErrBadRequest() *Error {
	return makeError(400, KindBadRequest).
		WithMessage("Bad request")
}

func ErrUnauthorized() *Error {
	return makeError(401, KindUnauthorized).
		WithMessage("Unauthorized")
}

func ErrForbidden() *Error {
	return makeError(403, KindForbidden).
		WithMessage("Forbidden")
}

func ErrNotFound() *Error {
	return makeError(404, KindNotFound).
		WithMessage("Requested resources not found")
}

func ErrValidation() *Error {
	return makeError(422, KindValidation).
		WithMessage("Submitted data failed validation")
}

// ErrInvalidState signals that the requested transition does not apply to the
// record's current state. Callers should re-fetch and re-render, not retry
func ErrInvalidState() *Error {
	return makeError(409, KindInvalidState).
		WithMessage("Requested action does not apply to the current state")
}

// ErrQuotaExceeded carries the current/max pair in Result so the owner
// dashboard can render an upgrade prompt
func ErrQuotaExceeded() *Error {
	return makeError(402, KindQuotaExceeded).
		WithMessage("Plan limit reached")
}

func ErrInvalidJson() *Error {
	return ErrBadRequest().AddMessages("Invalid JSON body")
}

func ErrNoBearer() *Error {
	return ErrUnauthorized().AddMessages("No valid Bearer token found in header")
}
