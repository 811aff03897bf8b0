package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/endlessblink/Gear-Pool/internal/domain"
	"github.com/endlessblink/Gear-Pool/internal/handler/response"
)

// MaxBodyBytes caps request bodies; reservations and settings are small.
const MaxBodyBytes = 1 << 20

// ValidateJSONContentType middleware ensures POST/PUT/PATCH requests with a
// body are JSON and no larger than MaxBodyBytes.
func ValidateJSONContentType(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}

			// Allow requests without body (transitions without a note, logout)
			if r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}

			contentType := r.Header.Get("Content-Type")
			if !strings.Contains(contentType, "application/json") {
				log.Warn("invalid content type",
					slog.String("path", r.URL.Path),
					slog.String("content_type", contentType),
					slog.String("method", r.Method),
				)
				response.Error(w, r, domain.NewValidationError("Content-Type must be application/json", nil))
				return
			}
			if r.ContentLength > MaxBodyBytes {
				response.Error(w, r, domain.NewValidationError("request body too large",
					map[string]any{"limitBytes": MaxBodyBytes}))
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// SanitizeInputs rejects markup characters in query parameters and path
// traversal patterns before any tenant or reservation id reaches a handler.
func SanitizeInputs(log *slog.Logger) func(http.Handler) http.Handler {
	dangerousChars := []string{"<", ">", "\"", "'"}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for key, values := range r.URL.Query() {
				for _, val := range values {
					for _, char := range dangerousChars {
						if strings.Contains(val, char) {
							log.Warn("suspicious input detected",
								slog.String("path", r.URL.Path),
								slog.String("param", key),
								slog.String("pattern", char),
							)
							response.Error(w, r, domain.NewValidationError("invalid characters in query parameter",
								map[string]any{"param": key}))
							return
						}
					}
				}
			}

			if strings.Contains(r.URL.Path, "..") || strings.Contains(r.URL.Path, "//") {
				log.Warn("suspicious path pattern detected", slog.String("path", r.URL.Path))
				response.Error(w, r, domain.NewValidationError("invalid path", nil))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
