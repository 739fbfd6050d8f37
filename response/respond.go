package response

import (
	"encoding/json"
	"net/http"
)

type envelope struct {
	Result   interface{} `json:"result"`
	Messages []string    `json:"messages,omitempty"`
}

// WriteResponse will serialize the result as a JSON envelope with status 200
func WriteResponse(w http.ResponseWriter, r *http.Request, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(envelope{
		Result: result,
	})
}

// WriteError will serialize the Error with its status code. A nil Error is a
// programming mistake and is reported as unexpected
func WriteError(w http.ResponseWriter, r *http.Request, e *Error) {
	if e == nil {
		e = ErrUnexpected()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	json.NewEncoder(w).Encode(e)
}
