package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/jonathan/outreach-agent/internal/apperrors"
)

// CronHeader carries the shared secret on scheduled calls.
const CronHeader = "X-Cron-Secret"

// CronSecret allows requests whose X-Cron-Secret header equals secret.
// An empty secret rejects every request.
func CronSecret(secret string, writeError ErrorWriter) func(http.Handler) http.Handler {
	if writeError == nil {
		writeError = plainError
	}
	want := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(CronHeader))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				writeError(w, r, &apperrors.UnauthorizedError{Reason: "invalid cron secret"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
