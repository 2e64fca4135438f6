package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/resolvd/resolvd/internal/domain"
	"github.com/resolvd/resolvd/internal/server/middleware"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain sentinel errors onto HTTP status codes and
// writes the error message. Unknown errors become a generic 500 so internal
// detail never leaks to clients.
func writeDomainError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrNoStake):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "not authorized")
	case errors.Is(err, domain.ErrInvalidOption),
		errors.Is(err, domain.ErrInvalidWindow),
		errors.Is(err, domain.ErrZeroAmount),
		errors.Is(err, domain.ErrInsufficientStake):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrPoolNotOpen),
		errors.Is(err, domain.ErrDeadlineNotReached),
		errors.Is(err, domain.ErrAlreadyFinalized),
		errors.Is(err, domain.ErrAlreadySettled),
		errors.Is(err, domain.ErrOptionSwitch),
		errors.Is(err, domain.ErrStakeForfeited),
		errors.Is(err, domain.ErrNoWinningStake),
		errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrOracleTimeout):
		writeError(w, http.StatusGatewayTimeout, "oracle unavailable")
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

// isInternal reports whether an error has no domain mapping and should be
// logged as a server-side failure.
func isInternal(err error) bool {
	for _, sentinel := range []error{
		domain.ErrNotFound, domain.ErrNoStake, domain.ErrUnauthorized,
		domain.ErrInvalidOption, domain.ErrInvalidWindow, domain.ErrZeroAmount, domain.ErrInsufficientStake,
		domain.ErrAlreadyExists, domain.ErrPoolNotOpen, domain.ErrDeadlineNotReached,
		domain.ErrAlreadyFinalized, domain.ErrAlreadySettled, domain.ErrOptionSwitch,
		domain.ErrStakeForfeited, domain.ErrNoWinningStake, domain.ErrLockHeld,
		domain.ErrRateLimited, domain.ErrOracleTimeout,
	} {
		if errors.Is(err, sentinel) {
			return false
		}
	}
	return true
}

// callerIdentity resolves the acting identity for a request. The principal
// bound by the auth middleware wins over the body value; when both are set
// they must match, and when neither is set the empty result is left for the
// handler's own required-field check.
func callerIdentity(r *http.Request, bodyIdentity string) (string, error) {
	principal, ok := middleware.Caller(r.Context())
	if !ok {
		return bodyIdentity, nil
	}
	if bodyIdentity != "" && bodyIdentity != principal {
		return "", domain.ErrUnauthorized
	}
	return principal, nil
}

// parseListOpts extracts standard pagination parameters from the query
// string. Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing.
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
