package www

import (
	"net/http"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
)

// HandleRateLimited is Handle, with a per-IP request limit in front of the
// handler. This is first-line protection against bursts, not an authentication
// rate limiter. The key is the client IP, so it resets when the process does.
func HandleRateLimited(log logs.Log, router *httprouter.Router, method, path string, handle httprouter.Handle, requestLimit int, windowLength time.Duration) {
	limited := httprate.Limit(requestLimit, windowLength, httprate.WithKeyFuncs(httprate.KeyByIP))
	Handle(log, router, method, path, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		limited(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handle(w, r, params)
		})).ServeHTTP(w, r)
	})
}
