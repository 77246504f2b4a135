package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/ondo/internal/tracker"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names in validation errors.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into v, rejecting unknown fields, and validates it.
// It writes the 400 response itself and reports whether the caller may go on.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return false
	}
	if t, ok := v.(interface{ trim() }); ok {
		t.trim()
	}
	if err := validate.Struct(v); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

func writeValidationError(w http.ResponseWriter, err error) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid input"})
		return
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fe.Tag()
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": fields})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// errorStatus maps view-model errors to HTTP statuses. Precondition failures
// are client errors; anything else came from the database.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, tracker.ErrNotAdmin):
		return http.StatusForbidden
	case errors.Is(err, tracker.ErrUnknownMember):
		return http.StatusNotFound
	case errors.Is(err, tracker.ErrBlankName), errors.Is(err, tracker.ErrInvalidDate):
		return http.StatusBadRequest
	case errors.Is(err, tracker.ErrBeforeEpoch),
		errors.Is(err, tracker.ErrNoPendingDelete),
		errors.Is(err, tracker.ErrDeleteInFlight):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

// writeResult writes the view after a mutation. On failure the view is still
// included so the client can show the reverted state and banner.
func writeResult(w http.ResponseWriter, err error, view any) {
	if err != nil {
		writeJSON(w, errorStatus(err), map[string]any{"error": err.Error(), "view": view})
		return
	}
	writeJSON(w, http.StatusOK, view)
}
