package server

import (
	"net/http"
	"time"

	"github.com/atlasvans/siteapi/pkg/www"
	"github.com/atlasvans/siteapi/server/authdb"
	"github.com/julienschmidt/httprouter"
)

const maxAuthBodyBytes = 64 * 1024

type userJSON struct {
	ID                 int64  `json:"id"`
	Username           string `json:"username"`
	Name               string `json:"name"`
	MustChangePassword bool   `json:"must_change_password"`
}

func makeUserJSON(user *authdb.AdminUser) *userJSON {
	return &userJSON{
		ID:                 user.ID,
		Username:           user.Username,
		Name:               user.Name,
		MustChangePassword: user.MustChangePassword,
	}
}

// httpAuth dispatches on the action query parameter, mirroring the serverless
// single-function layout that the frontend was built against.
func (s *Server) httpAuth(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	action := www.RequiredQueryValue(r, "action")
	switch action {
	case "login":
		s.httpAuthLogin(w, r)
	case "verify":
		s.httpAuthVerify(w, r)
	case "change-password":
		s.httpAuthChangePassword(w, r)
	case "logout":
		s.httpAuthLogout(w, r)
	default:
		www.PanicBadRequestf("Unknown auth action %q", action)
	}
}

func (s *Server) httpAuthLogin(w http.ResponseWriter, r *http.Request) {
	body := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{}
	www.ReadJSON(w, r, &body, maxAuthBodyBytes)

	session, user, fail := s.Login(r.Context(), body.Username, body.Password, ClientIP(r), r.UserAgent())
	if fail != nil {
		s.sendFailure(w, fail)
		return
	}
	www.SendJSON(w, &struct {
		Success   bool      `json:"success"`
		Token     string    `json:"token"`
		User      *userJSON `json:"user"`
		ExpiresAt time.Time `json:"expires_at"`
	}{
		Success:   true,
		Token:     session.Token,
		User:      makeUserJSON(user),
		ExpiresAt: session.ExpiresAt,
	})
}

func (s *Server) httpAuthVerify(w http.ResponseWriter, r *http.Request) {
	body := struct {
		Token string `json:"token"`
	}{}
	www.ReadJSON(w, r, &body, maxAuthBodyBytes)

	user, fail := s.Verify(r.Context(), body.Token)
	if fail != nil {
		s.sendFailure(w, fail)
		return
	}
	www.SendJSON(w, &struct {
		Valid bool      `json:"valid"`
		User  *userJSON `json:"user"`
	}{
		Valid: true,
		User:  makeUserJSON(user),
	})
}

func (s *Server) httpAuthChangePassword(w http.ResponseWriter, r *http.Request) {
	body := struct {
		Token           string `json:"token"`
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}{}
	www.ReadJSON(w, r, &body, maxAuthBodyBytes)

	session, fail := s.ChangePassword(r.Context(), body.Token, body.CurrentPassword, body.NewPassword, ClientIP(r))
	if fail != nil {
		s.sendFailure(w, fail)
		return
	}
	www.SendJSON(w, &struct {
		Success   bool      `json:"success"`
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}{
		Success:   true,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
	})
}

func (s *Server) httpAuthLogout(w http.ResponseWriter, r *http.Request) {
	if fail := s.Logout(r.Context(), BearerToken(r), ClientIP(r)); fail != nil {
		s.sendFailure(w, fail)
		return
	}
	www.SendJSON(w, &struct {
		Success bool `json:"success"`
	}{Success: true})
}
