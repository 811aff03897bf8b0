package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/endlessblink/Gear-Pool/internal/domain"
)

func TestErrorEnvelope(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   domain.ErrorCode
	}{
		{domain.NewValidationError("bad dates", nil), http.StatusUnprocessableEntity, domain.CodeValidation},
		{domain.NewUnavailableError(nil), http.StatusConflict, domain.CodeEquipmentUnavailable},
		{domain.NewTransitionError(domain.StatusCompleted, domain.StatusApproved), http.StatusConflict, domain.CodeInvalidStateTransition},
		{domain.NewStaleError("r1", 1, 2), http.StatusConflict, domain.CodeStaleReservationState},
		{domain.NewUnauthorizedError("no token"), http.StatusUnauthorized, domain.CodeUnauthorized},
		{domain.NewForbiddenError("no"), http.StatusForbidden, domain.CodeForbidden},
		{domain.NewNotFoundError("reservation", "r1"), http.StatusNotFound, domain.CodeNotFound},
		{errors.New("db exploded"), http.StatusInternalServerError, domain.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r = r.WithContext(WithRequestID(r.Context(), "req-1"))
			w := httptest.NewRecorder()

			Error(w, r, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var env Envelope
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
			assert.Equal(t, tt.code, env.Error.Code)
			assert.Equal(t, "req-1", env.Error.RequestID)
			assert.False(t, env.Error.Timestamp.IsZero())
			assert.NotContains(t, env.Error.Message, "exploded")
		})
	}
}
