package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"medifind/internal/app"
	"medifind/internal/booking"
	"medifind/internal/docstore"
	"medifind/internal/druginfo"
	"medifind/internal/gemini"
	"medifind/internal/identity"
)

// Envelope wraps every JSON response.
type Envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, Envelope{Status: "success", Message: message, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Envelope{Status: "error", Message: message, Error: code})
}

type failure struct {
	status  int
	code    string
	message string
}

// classify maps an operation error to its HTTP status and user-facing message. Unknown
// errors are treated as transient.
func classify(err error) failure {
	switch {
	case errors.Is(err, app.ErrNotSignedIn):
		return failure{http.StatusUnauthorized, "unauthorized", "Sign in required"}
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, booking.ErrInvalidStatus):
		return failure{http.StatusBadRequest, "invalid_input", err.Error()}
	case errors.Is(err, booking.ErrSlotAlreadyBooked):
		return failure{http.StatusConflict, "slot_already_booked", "This slot is already booked"}
	case errors.Is(err, booking.ErrInvalidTransition):
		return failure{http.StatusConflict, "invalid_transition", err.Error()}
	case errors.Is(err, docstore.ErrConflict):
		return failure{http.StatusConflict, "conflict", "The record changed, please try again"}
	case errors.Is(err, druginfo.ErrNoMatch):
		return failure{http.StatusNotFound, "not_found", "No medicine found with that name"}
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, identity.ErrUnknownUser):
		return failure{http.StatusNotFound, "not_found", err.Error()}
	case errors.Is(err, gemini.ErrMissingAPIKey):
		return failure{http.StatusServiceUnavailable, "not_configured", "AI answers are not available"}
	default:
		return failure{http.StatusBadGateway, "unavailable", "Something went wrong, please try again"}
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	f := classify(err)
	if f.status >= http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", r.URL.Path).Error("❌ Request failed")
	}
	writeFailure(w, f.status, f.code, f.message)
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body", app.ErrInvalidInput)
	}
	return nil
}
