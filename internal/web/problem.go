package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrWong99/sumirevox/internal/dictionary"
	"github.com/MrWong99/sumirevox/internal/observe"
	"github.com/MrWong99/sumirevox/internal/resilience"
	"github.com/MrWong99/sumirevox/internal/settings"
)

// Problem is an RFC 9457 problem details document.
type Problem struct {
	Type   string              `json:"type,omitempty"`
	Title  string              `json:"title,omitempty"`
	Status int                 `json:"status,omitempty"`
	Detail string              `json:"detail,omitempty"`
	Errors map[string][]string `json:"errors,omitempty"`
	Meta   map[string]any      `json:"meta,omitempty"`
}

func writeProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// problemFor maps a domain error to its HTTP problem.
func problemFor(err error) Problem {
	var ve *settings.ValidationError
	switch {
	case errors.As(err, &ve):
		return Problem{
			Title:  "validation failed",
			Status: http.StatusUnprocessableEntity,
			Detail: ve.Error(),
			Errors: map[string][]string{ve.Field: {ve.Reason}},
		}
	case errors.Is(err, dictionary.ErrInvalidInput), errors.Is(err, settings.ErrInvalidInput):
		return Problem{Title: "invalid input", Status: http.StatusBadRequest, Detail: err.Error()}
	case errors.Is(err, resilience.ErrCircuitOpen):
		return Problem{Title: "voicevox unavailable", Status: http.StatusBadGateway, Detail: err.Error()}
	case errors.Is(err, dictionary.ErrFetchFailed),
		errors.Is(err, dictionary.ErrAddFailed),
		errors.Is(err, dictionary.ErrDeleteFailed):
		return Problem{Title: "voicevox request failed", Status: http.StatusBadGateway, Detail: err.Error()}
	case errors.Is(err, settings.ErrPersistence):
		return Problem{Title: "storage failure", Status: http.StatusInternalServerError, Detail: "the settings database is unavailable"}
	default:
		return Problem{Title: "internal error", Status: http.StatusInternalServerError}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	p := problemFor(err)
	if p.Status >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("request failed", "route", r.Pattern, "err", err)
	}
	writeProblem(w, p)
}
