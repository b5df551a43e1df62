package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/loom/internal/session"
	"github.com/samcharles93/loom/internal/tokenizer"
)

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
		},
	})
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg)
}

// writeDomainError maps session and tokenizer sentinels onto HTTP
// statuses.
func writeDomainError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, session.ErrSessionDestroyed):
		return writeError(c, http.StatusGone, "session_destroyed", err.Error())
	case errors.Is(err, session.ErrConflictingSession):
		return writeError(c, http.StatusConflict, "conflicting_session", err.Error())
	case errors.Is(err, session.ErrUnsupportedBacktrack),
		errors.Is(err, session.ErrCloneUnsupported):
		return writeError(c, http.StatusNotImplemented, "unsupported_operation", err.Error())
	case errors.Is(err, session.ErrNotPrimed),
		errors.Is(err, session.ErrNoLogits):
		return writeError(c, http.StatusConflict, "sequence_not_primed", err.Error())
	case errors.Is(err, tokenizer.ErrInvalidToken):
		return writeBadRequest(c, err.Error())
	case errors.Is(err, tokenizer.ErrPrefixMismatch),
		errors.Is(err, tokenizer.ErrTokenTooLong),
		errors.Is(err, tokenizer.ErrInconsistentState):
		return writeError(c, http.StatusUnprocessableEntity, "tokenizer_error", err.Error())
	default:
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
}
