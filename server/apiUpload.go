package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/atlasvans/siteapi/pkg/www"
	"github.com/atlasvans/siteapi/server/authdb"
	"github.com/atlasvans/siteapi/server/imageproc"
	"github.com/julienschmidt/httprouter"
)

// readUploadBody accepts either a raw image body, or the first file of a
// multipart form.
func readUploadBody(w http.ResponseWriter, r *http.Request, maxBytes int64) []byte {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			www.PanicBadRequestf("Failed to parse multipart form: %v", err)
		}
		for _, files := range r.MultipartForm.File {
			for _, header := range files {
				f, err := header.Open()
				www.Check(err)
				defer f.Close()
				data, err := io.ReadAll(f)
				www.Check(err)
				return data
			}
		}
		www.PanicBadRequestf("Multipart form contains no file")
	}
	return www.ReadLimited(w, r, maxBytes)
}

// httpUpload accepts a raw image body, with the declared kind in the query.
// Validation happens before any storage write; the declared kind chooses the
// filename prefix, never the accepted format.
func (s *Server) httpUpload(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *authdb.AdminUser) {
	kind, err := imageproc.ParseKind(www.RequiredQueryValue(r, "type"))
	if err != nil {
		www.PanicBadRequestf("%v", err)
	}

	data := readUploadBody(w, r, s.Images.MaxBytes+1)
	result, err := s.Images.Process(data, kind)
	if err != nil {
		www.PanicBadRequestf("%v", err)
	}

	name := "uploads/" + result.Filename
	if err := s.Store.WriteBlob(r.Context(), name, result.Data); err != nil {
		s.Log.Errorf("Failed to store upload %v: %v", name, err)
		www.PanicServerError("Could not save upload")
	}

	www.SendJSON(w, &struct {
		Success  bool   `json:"success"`
		Filename string `json:"filename"`
		URL      string `json:"url"`
	}{
		Success:  true,
		Filename: result.Filename,
		URL:      "/" + name,
	})
}
