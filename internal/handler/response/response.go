// Package response writes JSON bodies and the error envelope shared by
// handlers and middleware.
package response

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/endlessblink/Gear-Pool/internal/domain"
)

type requestIDKey struct{}

// WithRequestID stores the request id on ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored by WithRequestID, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Envelope is the body of every error response.
type Envelope struct {
	Error Body `json:"error"`
}

// Body carries the client-facing failure description.
type Body struct {
	Code      domain.ErrorCode `json:"code"`
	Message   string           `json:"message"`
	Details   map[string]any   `json:"details,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	RequestID string           `json:"requestId,omitempty"`
}

var statusByCode = map[domain.ErrorCode]int{
	domain.CodeValidation:             http.StatusUnprocessableEntity,
	domain.CodeEquipmentUnavailable:   http.StatusConflict,
	domain.CodeInvalidStateTransition: http.StatusConflict,
	domain.CodeStaleReservationState:  http.StatusConflict,
	domain.CodeUnauthorized:           http.StatusUnauthorized,
	domain.CodeForbidden:              http.StatusForbidden,
	domain.CodeNotFound:               http.StatusNotFound,
	domain.CodeRateLimited:            http.StatusTooManyRequests,
	domain.CodeInternal:               http.StatusInternalServerError,
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code domain.ErrorCode) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// JSON writes data with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Default().Error("failed to encode response", slog.String("error", err.Error()))
		}
	}
}

// Error writes err as an envelope. Errors that are not domain errors are
// reported as INTERNAL without leaking their text.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	body := Body{
		Code:      domain.CodeInternal,
		Message:   "internal server error",
		Timestamp: time.Now().UTC(),
		RequestID: RequestID(r.Context()),
	}
	var de *domain.Error
	if errors.As(err, &de) {
		body.Code = de.Code
		body.Message = de.Message
		body.Details = de.Details
	}
	JSON(w, StatusFor(body.Code), Envelope{Error: body})
}

// Fail writes an envelope for a code without a domain error value.
func Fail(w http.ResponseWriter, r *http.Request, code domain.ErrorCode, message string) {
	JSON(w, StatusFor(code), Envelope{Error: Body{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
		RequestID: RequestID(r.Context()),
	}})
}

// Decode reads a JSON body into target, rejecting unknown fields.
func Decode(r *http.Request, target any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return domain.NewValidationError("invalid JSON body", map[string]any{"reason": err.Error()})
	}
	return nil
}
