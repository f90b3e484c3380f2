package server

import (
	"net/http"

	"github.com/atlasvans/siteapi/pkg/www"
	"github.com/atlasvans/siteapi/server/authdb"
	"github.com/atlasvans/siteapi/server/sitedb"
	"github.com/julienschmidt/httprouter"
)

func (s *Server) httpSettingsGet(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	settings := s.Site.Settings(r.Context())
	www.SendJSON(w, &settings)
}

func (s *Server) httpSettingsPut(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *authdb.AdminUser) {
	settings := sitedb.SiteSettings{}
	www.ReadJSON(w, r, &settings, 256*1024)
	if err := s.Site.SetSettings(r.Context(), settings); err != nil {
		www.PanicServerError("Could not save settings")
	}
	www.SendJSON(w, &settings)
}
