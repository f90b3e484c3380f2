package server

import (
	"net/http"

	"github.com/atlasvans/siteapi/pkg/www"
	"github.com/atlasvans/siteapi/server/authdb"
	"github.com/julienschmidt/httprouter"
)

func (s *Server) httpUsersList(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *authdb.AdminUser) {
	users := s.Auth.AllUsers(r.Context())
	out := make([]*userJSON, 0, len(users))
	for i := range users {
		out = append(out, makeUserJSON(&users[i]))
	}
	www.SendJSON(w, out)
}

func (s *Server) httpUsersCreate(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *authdb.AdminUser) {
	body := struct {
		Username string `json:"username"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}{}
	www.ReadJSON(w, r, &body, maxAuthBodyBytes)

	created, err := s.Auth.CreateUser(r.Context(), body.Username, body.Name, body.Password)
	if err != nil {
		www.PanicBadRequestf("%v", err)
	}
	www.SendJSON(w, makeUserJSON(created))
}

func (s *Server) httpEventsList(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *authdb.AdminUser) {
	www.SendJSON(w, s.eventSink.Recent(r.Context()))
}
