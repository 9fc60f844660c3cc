package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"fieldline/internal/engine"
	"fieldline/internal/repo"
)

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"project p1 cannot move from draft to soft_paused"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"from\":\"draft\",\"to\":\"soft_paused\"}"`
}

// apiError renders as {"error": {...}} with the HTTP status kept aside.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = codeForStatus(status)
	}
	return &apiError{status: status, Body: apiErrorBody{Code: code, Message: message, Details: details}}
}

var statusCodes = map[int]string{
	http.StatusBadRequest:          "bad_request",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusNotFound:            "not_found",
	http.StatusConflict:            "conflict",
	http.StatusUnprocessableEntity: "validation_failed",
	http.StatusInternalServerError: "internal_error",
}

func codeForStatus(status int) string {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}

var sentinelErrors = []struct {
	err    error
	status int
	code   string
}{
	{repo.ErrNotFound, http.StatusNotFound, "not_found"},
	{engine.ErrNotFielding, http.StatusConflict, "not_fielding"},
	{engine.ErrNoSoftLaunch, http.StatusConflict, "no_soft_launch"},
}

// handleError maps engine and repository failures onto the error envelope.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var te engine.TransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{"from": te.From, "to": te.To})
	}
	for _, s := range sentinelErrors {
		if errors.Is(err, s.err) {
			return newAPIError(s.status, s.code, err.Error(), nil)
		}
	}
	msg := err.Error()
	switch lowered := strings.ToLower(msg); {
	case strings.Contains(lowered, "unique constraint"):
		return newAPIError(http.StatusConflict, "conflict", "resource already exists", nil)
	case containsAny(lowered, "invalid", "missing", "required", "must"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// installErrorEnvelope routes huma's own validation errors through newAPIError.
func installErrorEnvelope() {
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, errorDetails(errs))
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		return newAPIError(status, "", msg, errorDetails(errs))
	}
}

func errorDetails(errs []error) map[string]any {
	if len(errs) == 0 {
		return nil
	}
	return map[string]any{"errors": errs}
}
