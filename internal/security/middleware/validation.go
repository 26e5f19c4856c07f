package middleware

import (
	"log/slog"
	"mime"
	"net/http"
	"strings"
)

var bodyMethods = map[string]bool{
	http.MethodPost:  true,
	http.MethodPut:   true,
	http.MethodPatch: true,
}

// ValidateJSONContentType answers 415 when a write carries a non-JSON body.
// Empty bodies pass, so action routes like submit and read-all need no header.
// Upload routes are not wrapped with it.
func ValidateJSONContentType(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bodyMethods[r.Method] && r.ContentLength != 0 {
				ct := r.Header.Get("Content-Type")
				if mt, _, _ := mime.ParseMediaType(ct); mt != "application/json" {
					log.Warn("rejected non-json body",
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("content_type", ct),
					)
					writeError(w, r, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LimitBody caps the request body at maxBytes.
func LimitBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// SanitizeInputs rejects traversal in the path and control characters in query values.
func SanitizeInputs(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p := r.URL.Path; strings.Contains(p, "..") || strings.Contains(p, "//") {
				log.Warn("rejected suspicious path", slog.String("path", p))
				writeError(w, r, http.StatusBadRequest, "invalid path")
				return
			}
			if key, bad := controlCharParam(r); bad {
				log.Warn("rejected control characters in query",
					slog.String("path", r.URL.Path),
					slog.String("param", key),
				)
				writeError(w, r, http.StatusBadRequest, "invalid input: control characters are not allowed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func controlCharParam(r *http.Request) (string, bool) {
	for key, values := range r.URL.Query() {
		for _, v := range values {
			if strings.ContainsFunc(v, isControl) {
				return key, true
			}
		}
	}
	return "", false
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}
