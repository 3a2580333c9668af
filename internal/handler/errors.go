package handler

import (
	"net/http"
	"strconv"

	"tidepool-web/internal/domain"
	"tidepool-web/internal/observability"
)

// StatusFor maps a domain error kind to its HTTP status. An unmapped
// kind is a taxonomy gap, so it logs a warning and falls back to 500.
func StatusFor(err *domain.Error) int {
	switch err.Kind {
	case domain.KindValidation:
		return http.StatusUnprocessableEntity
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		observability.Warn("unmapped domain error kind", "kind", err.Kind.String())
		return http.StatusInternalServerError
	}
}

// GenericMessageFor returns the fixed user-safe message for an error's
// kind. The error's Detail is a logging concern and never reaches a
// response body.
func GenericMessageFor(err *domain.Error) string {
	switch err.Kind {
	case domain.KindValidation:
		return "Please correct the highlighted fields."
	case domain.KindUnauthorized:
		return "Invalid email or password."
	case domain.KindNotFound:
		return "Not found."
	case domain.KindConflict:
		return "An account with this email already exists."
	case domain.KindRateLimited:
		return "Too many attempts. Please try again later."
	default:
		return "Something went wrong. Please try again."
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// writeDomainError renders an error as JSON for the API surface.
func writeDomainError(w http.ResponseWriter, err error) {
	de, ok := domain.AsError(err)
	if !ok {
		observability.Error("unexpected error reached the HTTP layer", "error", err)
		JSON(http.StatusInternalServerError, errorBody{Error: "Internal server error"}).Write(w)
		return
	}

	spec := JSON(StatusFor(de), errorBody{Error: GenericMessageFor(de)})
	if de.Kind == domain.KindRateLimited && de.RetryAfter > 0 {
		spec = spec.WithHeader("Retry-After", strconv.Itoa(de.RetryAfter))
	}
	spec.Write(w)
}
