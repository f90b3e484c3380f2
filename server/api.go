package server

import (
	"net/http"
	"time"

	"github.com/atlasvans/siteapi/pkg/www"
	"github.com/atlasvans/siteapi/server/authdb"
	"github.com/atlasvans/siteapi/server/seclog"
	"github.com/julienschmidt/httprouter"
)

// SetupRouter builds the API routes.
// Sensitive endpoints get a per-IP httprate limiter in front of the persistent
// windowed limiter, as cheap first-line protection against bursts.
func (s *Server) SetupRouter() *httprouter.Router {
	router := httprouter.New()

	handle := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, handle)
	}

	ratelimited := func(method, route string, handle httprouter.Handle, requestLimit int, windowLength time.Duration) {
		www.HandleRateLimited(s.Log, router, method, route, handle, requestLimit, windowLength)
	}

	// protected wraps a handler with bearer token authentication
	protected := func(handle func(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *authdb.AdminUser)) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			user, fail := s.Verify(r.Context(), BearerToken(r))
			if fail != nil {
				s.Events.Emit(r.Context(), seclog.Event{Type: seclog.EventUnauthorized, IP: ClientIP(r), Detail: r.Method + " " + r.URL.Path})
				s.sendFailure(w, fail)
				return
			}
			handle(w, r, params, user)
		}
	}

	handle("GET", "/api/health", s.httpHealth)

	ratelimited("POST", "/api/auth", s.httpAuth, 30, time.Minute)

	handle("GET", "/api/vehicles", s.httpVehiclesList)
	handle("GET", "/api/vehicles/:id", s.httpVehiclesGet)
	handle("POST", "/api/vehicles", protected(s.httpVehiclesCreate))
	handle("PUT", "/api/vehicles/:id", protected(s.httpVehiclesUpdate))
	handle("DELETE", "/api/vehicles/:id", protected(s.httpVehiclesDelete))

	handle("GET", "/api/settings", s.httpSettingsGet)
	handle("PUT", "/api/settings", protected(s.httpSettingsPut))

	ratelimited("POST", "/api/upload", protected(s.httpUpload), 10, time.Minute)

	handle("GET", "/api/users", protected(s.httpUsersList))
	handle("POST", "/api/users", protected(s.httpUsersCreate))
	handle("GET", "/api/events", protected(s.httpEventsList))

	return router
}

func (s *Server) httpHealth(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendOK(w)
}

type failureJSON struct {
	Error            string `json:"error"`
	RemainingMinutes int    `json:"remaining_minutes,omitempty"`
}

// sendFailure writes an auth failure as JSON. Every caller that can fail for
// more than one internal reason sends the exact same payload for each, so the
// response body carries no information beyond the failure code.
func (s *Server) sendFailure(w http.ResponseWriter, fail *AuthFailure) {
	www.SendJSONStatus(w, fail.Status, &failureJSON{
		Error:            fail.Code,
		RemainingMinutes: fail.RemainingMinutes,
	})
}
