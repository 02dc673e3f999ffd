package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"hisab/internal/auth"
	"hisab/internal/core"
	"hisab/internal/log"
	"hisab/internal/services"
)

// JSONResponseBuilder provides a fluent API for writing JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	payload    any
}

// NewJSONResponse creates a builder with a 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{statusCode: http.StatusOK, headers: make(map[string]string)}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the value encoded as the response body.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.payload = v
	return b
}

// Write sends the response. A nil payload writes no body.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for k, v := range b.headers {
		w.Header().Set(k, v)
	}
	if b.payload == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Data(v).Write(w)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// badRequest marks request-shape errors detected by the handlers.
type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

var clientErrors = []struct {
	status int
	errs   []error
}{
	{http.StatusNotFound, []error{core.ErrNotFound}},
	{http.StatusUnauthorized, []error{services.ErrInvalidCredentials, auth.ErrInvalidToken, auth.ErrTokenExpired}},
	{http.StatusForbidden, []error{
		services.ErrForbidden, services.ErrNotAdmin, services.ErrNotMember,
		services.ErrNotLinked, services.ErrWrongRole,
	}},
	{http.StatusConflict, []error{
		services.ErrAlreadyPending, services.ErrAlreadyMember, services.ErrAlreadyLinked, services.ErrEmailTaken,
	}},
	{http.StatusBadRequest, []error{
		services.ErrSelfInvite, services.ErrEmptyName, services.ErrInvalidEmail, auth.ErrPasswordTooShort,
		core.ErrInvalidAmount, core.ErrEmptyCategory, core.ErrInvalidDate, core.ErrFutureDate,
		core.ErrNoteTooLong, core.ErrInvalidOwner, core.ErrEmptyMessage, core.ErrMessageLength,
		core.ErrAlertType, core.ErrInvalidBudget,
	}},
}

// statusFor maps service errors to a status code. Unknown errors are 500.
func statusFor(err error) int {
	var br badRequest
	if errors.As(err, &br) {
		return http.StatusBadRequest
	}
	for _, group := range clientErrors {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.status
			}
		}
	}
	return http.StatusInternalServerError
}

// respondError writes err with its mapped status. Server errors are logged
// and their details withheld from the client.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.NewStructuredLogger(log.FromContext(ctx)).LogError(ctx, "Request failed", err, log.ComponentHTTP, "respond", nil)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
