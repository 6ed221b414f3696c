package http

import (
	"errors"
	"net/http"

	"fatture/internal/auth"
	"fatture/internal/core"
	applog "fatture/internal/log"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusMapping pairs a sentinel with its HTTP translation. Order matters
// only for readability; sentinels are disjoint.
var statusMapping = []struct {
	sentinel error
	status   int
	code     string
}{
	{core.ErrDuplicateLabel, http.StatusConflict, "duplicate_label"},
	{core.ErrDuplicateCode, http.StatusConflict, "duplicate_tax_code"},
	{auth.ErrDuplicateUser, http.StatusConflict, "duplicate_user"},
	{core.ErrEntryInUse, http.StatusConflict, "entry_in_use"},
	{core.ErrNotFound, http.StatusNotFound, "not_found"},
	{core.ErrUnknownReference, http.StatusUnprocessableEntity, "unknown_reference"},
	{core.ErrInvalidAmount, http.StatusUnprocessableEntity, "invalid_amount"},
	{core.ErrInvalidDate, http.StatusUnprocessableEntity, "invalid_date"},
	{core.ErrInvalidRange, http.StatusUnprocessableEntity, "invalid_range"},
	{core.ErrInvalidNumber, http.StatusUnprocessableEntity, "invalid_number"},
	{core.ErrInvalidNote, http.StatusUnprocessableEntity, "invalid_note"},
	{core.ErrInvalidLabel, http.StatusUnprocessableEntity, "invalid_label"},
	{core.ErrInvalidCode, http.StatusUnprocessableEntity, "invalid_tax_code"},
	{core.ErrEmptyReport, http.StatusUnprocessableEntity, "empty_report"},
	{auth.ErrWeakPassword, http.StatusUnprocessableEntity, "weak_password"},
	{auth.ErrInvalidRegistration, http.StatusUnprocessableEntity, "invalid_registration"},
	{core.ErrUnsupportedFormat, http.StatusBadRequest, "unsupported_format"},
	{core.ErrStorage, http.StatusInternalServerError, "storage_error"},
}

// writeError maps a service error onto the JSON error envelope.
// Unauthorized splits on authentication state: no identity → 401, an
// authenticated caller missing a capability → 403.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, core.ErrUnauthorized) {
		status := http.StatusUnauthorized
		code := "unauthorized"
		if _, ok := userFrom(r.Context()); ok {
			status = http.StatusForbidden
			code = "forbidden"
		}
		writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: err.Error()}})
		return
	}

	for _, m := range statusMapping {
		if errors.Is(err, m.sentinel) {
			if m.status >= 500 {
				fields := applog.NewFields().WithError(err)
				fields[applog.FieldPath] = r.URL.Path
				applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed", fields.ToSlice()...)
			}
			writeJSON(w, m.status, errorBody{Error: errorDetail{Code: m.code, Message: err.Error()}})
			return
		}
	}

	fields := applog.NewFields().WithError(err)
	fields[applog.FieldPath] = r.URL.Path
	applog.FromContext(r.Context()).ErrorContext(r.Context(), "Unclassified request error", fields.ToSlice()...)
	writeJSON(w, http.StatusInternalServerError, errorBody{
		Error: errorDetail{Code: "internal", Message: "internal server error"},
	})
}

// writeBadRequest reports a malformed request body or parameter.
func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{
		Error: errorDetail{Code: "bad_request", Message: msg},
	})
}
