package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"flint/internal/shared/apperr"
)

// errorEnvelope is the JSON error body. The message is always user safe;
// wrapped causes stay in the logs.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"` // seconds
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError maps err onto the error taxonomy and writes the envelope.
// Rate limit errors also carry a Retry-After header.
func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	body := errorBody{Code: string(code)}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		body.Message = ae.Message
		if ae.RetryAfter > 0 {
			seconds := int(ae.RetryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			body.RetryAfter = seconds
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
		}
	} else {
		body.Message = "something went wrong"
	}

	writeJSON(w, apperr.HTTPStatus(code), errorEnvelope{Error: body})
}
