package api

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Errors returned by handlers. fail maps them to HTTP statuses.
var (
	errBadRequest   = errors.New("bad request")
	errNotOpen      = errors.New("database not open")
	errUnauthorized = errors.New("unauthorised")
	errNoRoute      = errors.New("no such route")
)

// errorBody is the JSON body of every error response.
type errorBody struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// handlerFunc is an HTTP handler that reports failure by returning an error.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle adapts fn to http.HandlerFunc, turning its error into a response.
func (s *Server) handle(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			s.fail(w, r, err)
		}
	}
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, errNotOpen), errors.Is(err, errNoRoute):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errUnauthorized), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized, "unauthorised"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// fail writes err as an error response. Internal errors are logged and
// their text is not sent to the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	requestID, _ := r.Context().Value(ctxKeyRequestID).(string) //nolint:errcheck // absent outside the router
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", requestID, "error", err)
		msg = "internal server error"
	}
	writeJSON(w, status, errorBody{Status: status, Code: code, Message: msg, RequestID: requestID})
}

// writeJSON writes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v) //nolint:errcheck // the client may have gone
	}
}
