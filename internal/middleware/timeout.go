package middleware

import (
	"net/http"
	"time"
)

// Timeout wraps every handler with an http.TimeoutHandler. Nothing this
// service exposes streams to the client — webhook ingress answers 202
// immediately and export downloads are bounded reads — so a single flat
// deadline protects every route against slow readers.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"success":false,"error":"request timeout"}`)
	}
}
