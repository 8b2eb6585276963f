// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

const (
	commandRequestLimit = 120
	commandWindow       = time.Minute
)

// commandRateLimit bounds the command surface per client IP. The limiter
// uses a sliding window so bursts right at the window edge still count.
func commandRateLimit() func(http.Handler) http.Handler {
	return httprate.Limit(
		commandRequestLimit,
		commandWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(commandWindow.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded","detail":"Too many requests. Please try again later."}`))
		}),
	)
}
