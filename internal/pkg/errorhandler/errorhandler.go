package errorhandler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/creditwager/creditwager-api/internal/pkg/database"
	"github.com/creditwager/creditwager-api/internal/pkg/logger"
	"github.com/creditwager/creditwager-api/internal/pkg/response"
)

// Mapping binds a domain sentinel error to the HTTP error it produces.
type Mapping struct {
	Err     error
	Status  int
	Code    string
	Message string
}

// retryAfterSeconds is advertised when the ledger store is unavailable.
const retryAfterSeconds = 2

// Handle writes the response for err. Mapped domain errors are client errors
// and logged at warn level; store unavailability becomes a 503 the client may
// retry; anything else is logged with the request id and hidden behind a 500.
func Handle(ctx context.Context, w http.ResponseWriter, err error, mappings ...Mapping) {
	for _, m := range mappings {
		if errors.Is(err, m.Err) {
			logger.FromContext(ctx).Warn().
				Err(err).
				Str("error_code", m.Code).
				Int("status_code", m.Status).
				Msg("Request rejected")
			response.Error(w, m.Status, m.Code, m.Message)
			return
		}
	}

	if errors.Is(err, database.ErrUnavailable) {
		HandleError(ctx, w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "store unavailable", err)
		return
	}

	HandleError(ctx, w, http.StatusInternalServerError, "INTERNAL_ERROR", "unexpected error", err)
}

// HandleError handles an error response with full logging
func HandleError(ctx context.Context, w http.ResponseWriter, status int, code, message string, err error) {
	event := log.Error().
		Str("request_id", logger.RequestID(ctx)).
		Str("error_code", code).
		Str("error_message", message).
		Int("status_code", status)
	if err != nil {
		event = event.Err(err)
	}
	event.Msg("Request error")

	switch status {
	case http.StatusServiceUnavailable:
		response.Unavailable(w, retryAfterSeconds)
	case http.StatusInternalServerError:
		response.InternalError(w)
	default:
		response.Error(w, status, code, message)
	}
}

// HandlePanicError logs a recovered panic with its stack.
func HandlePanicError(ctx context.Context, w http.ResponseWriter, panicErr interface{}, stackTrace string) {
	log.Error().
		Str("request_id", logger.RequestID(ctx)).
		Interface("panic_error", panicErr).
		Str("panic_stack", stackTrace).
		Msg("Request panic error")

	response.InternalError(w)
}

// LogDatabaseError logs database errors with context
func LogDatabaseError(ctx context.Context, operation string, err error) {
	log.Error().
		Str("request_id", logger.RequestID(ctx)).
		Str("operation", operation).
		Bool("transient", database.IsTransient(err)).
		Err(err).
		Msg("Database error")
}

// LogValidationError logs validation errors with details
func LogValidationError(ctx context.Context, fieldErrors map[string]string) {
	errJSON, _ := json.Marshal(fieldErrors)
	log.Warn().
		Str("request_id", logger.RequestID(ctx)).
		RawJSON("validation_errors", errJSON).
		Msg("Validation error")
}

// LogExternalServiceError logs errors from external service calls
func LogExternalServiceError(ctx context.Context, service string, endpoint string, statusCode int, err error, body string) {
	log.Error().
		Str("request_id", logger.RequestID(ctx)).
		Str("external_service", service).
		Str("endpoint", endpoint).
		Int("status_code", statusCode).
		Err(err).
		Str("response_body", truncateString(body, 1000)).
		Msg("External service error")
}

func truncateString(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "...<truncated>"
	}
	return s
}
