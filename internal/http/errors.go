package http

import (
	"errors"
	"log/slog"
	"net/http"

	"MarketSettle/internal/models"
	"MarketSettle/internal/payments"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{models.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{models.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{models.ErrAlreadyTerminal, http.StatusConflict, "already_terminal"},
	{models.ErrInvalidAmount, http.StatusUnprocessableEntity, "invalid_amount"},
	{models.ErrPayoutNotReady, http.StatusPreconditionFailed, "payout_not_ready"},
	{models.ErrConcurrentModification, http.StatusConflict, "concurrent_modification"},
	{models.ErrProviderUnavailable, http.StatusServiceUnavailable, "provider_unavailable"},
	{models.ErrNotFound, http.StatusNotFound, "not_found"},
	{models.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
	{payments.ErrBadSignature, http.StatusBadRequest, "bad_signature"},
}

func classify(err error) (int, string) {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.status, c.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, r, status, errorResponse{Error: code, Message: msg})
}

// writeServiceError maps a domain error onto its HTTP status and code.
// Unclassified errors are logged and reported without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, r, status, code, "internal error")
		return
	}
	writeError(w, r, status, code, err.Error())
}

func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) && len(vErrs) > 0 {
		vErr := vErrs[0]
		switch vErr.Tag() {
		case "required":
			writeError(w, r, http.StatusBadRequest, "invalid_request", vErr.Field()+" value missing")
		case "max":
			writeError(w, r, http.StatusBadRequest, "invalid_request", vErr.Field()+" is longer than "+vErr.Param())
		default:
			writeError(w, r, http.StatusBadRequest, "invalid_request", vErr.Field()+" failed "+vErr.Tag())
		}
		return
	}
	writeError(w, r, http.StatusBadRequest, "invalid_request", http.StatusText(http.StatusBadRequest))
}
