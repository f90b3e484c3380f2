package server

import (
	"net/http"

	"github.com/atlasvans/siteapi/pkg/www"
	"github.com/atlasvans/siteapi/server/authdb"
	"github.com/atlasvans/siteapi/server/sitedb"
	"github.com/julienschmidt/httprouter"
)

const maxVehicleBodyBytes = 256 * 1024

func (s *Server) httpVehiclesList(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.Site.Vehicles(r.Context()))
}

func (s *Server) httpVehiclesGet(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id := www.ParseID(params.ByName("id"))
	vehicle := s.Site.VehicleByID(r.Context(), id)
	if vehicle == nil {
		www.PanicNotFound()
	}
	www.SendJSON(w, vehicle)
}

func (s *Server) httpVehiclesCreate(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *authdb.AdminUser) {
	vehicle := sitedb.Vehicle{}
	www.ReadJSON(w, r, &vehicle, maxVehicleBodyBytes)
	if vehicle.Name == "" {
		www.PanicBadRequestf("Vehicle name must be set")
	}
	created, err := s.Site.AddVehicle(r.Context(), vehicle)
	www.Check(err)
	www.SendJSON(w, created)
}

func (s *Server) httpVehiclesUpdate(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *authdb.AdminUser) {
	vehicle := sitedb.Vehicle{}
	www.ReadJSON(w, r, &vehicle, maxVehicleBodyBytes)
	vehicle.ID = www.ParseID(params.ByName("id"))
	if vehicle.ID == 0 {
		www.PanicBadRequestf("Invalid vehicle id")
	}
	updated, err := s.Site.UpdateVehicle(r.Context(), vehicle)
	www.Check(err)
	if updated == nil {
		www.PanicNotFound()
	}
	www.SendJSON(w, updated)
}

func (s *Server) httpVehiclesDelete(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *authdb.AdminUser) {
	id := www.ParseID(params.ByName("id"))
	found, err := s.Site.DeleteVehicle(r.Context(), id)
	www.Check(err)
	if !found {
		www.PanicNotFound()
	}
	www.SendOK(w)
}
