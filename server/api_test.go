package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/atlasvans/siteapi/server/config"
	"github.com/atlasvans/siteapi/server/seclog"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, alter func(cfg *config.Config)) *Server {
	cfg := config.Default()
	cfg.DataPath = t.TempDir()
	if alter != nil {
		alter(cfg)
	}
	s, err := NewServer(logs.NewTestingLog(t), cfg)
	require.NoError(t, err)
	_, err = s.Auth.CreateUser(context.Background(), "admin", "Admin", "first-password")
	require.NoError(t, err)
	return s
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	return doRaw(t, router, method, path, reader, token)
}

func doRaw(t *testing.T, router http.Handler, method, path string, body io.Reader, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("User-Agent", "siteapi-test/1.0")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, obj any) {
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), obj))
}

func login(t *testing.T, router http.Handler, username, password string) *httptest.ResponseRecorder {
	return doJSON(t, router, "POST", "/api/auth?action=login", map[string]string{
		"username": username,
		"password": password,
	}, "")
}

func mustLogin(t *testing.T, router http.Handler, username, password string) string {
	rec := login(t, router, username, password)
	require.Equal(t, http.StatusOK, rec.Code)
	body := struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}{}
	decodeBody(t, rec, &body)
	require.True(t, body.Success)
	require.Len(t, body.Token, 64)
	return body.Token
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doJSON(t, s.SetupRouter(), "GET", "/api/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
}

// The full session lifecycle: login, verify, change password (which rotates the
// token), logout.
func TestAuthLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	router := s.SetupRouter()

	rec := login(t, router, "admin", "wrong-password")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	fail := struct {
		Error string `json:"error"`
	}{}
	decodeBody(t, rec, &fail)
	require.Equal(t, FailInvalidCredentials, fail.Error)

	token := mustLogin(t, router, "admin", "first-password")

	rec = doJSON(t, router, "POST", "/api/auth?action=verify", map[string]string{"token": token}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	verify := struct {
		Valid bool `json:"valid"`
		User  struct {
			Username string `json:"username"`
		} `json:"user"`
	}{}
	decodeBody(t, rec, &verify)
	require.True(t, verify.Valid)
	require.Equal(t, "admin", verify.User.Username)

	// Wrong current password is rejected
	rec = doJSON(t, router, "POST", "/api/auth?action=change-password", map[string]string{
		"token":            token,
		"current_password": "not-the-password",
		"new_password":     "second-password",
	}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// A weak replacement is rejected
	rec = doJSON(t, router, "POST", "/api/auth?action=change-password", map[string]string{
		"token":            token,
		"current_password": "first-password",
		"new_password":     "short",
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, "POST", "/api/auth?action=change-password", map[string]string{
		"token":            token,
		"current_password": "first-password",
		"new_password":     "second-password",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	changed := struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}{}
	decodeBody(t, rec, &changed)
	require.True(t, changed.Success)
	require.NotEqual(t, token, changed.Token)

	// The old token died with the password change
	rec = doJSON(t, router, "POST", "/api/auth?action=verify", map[string]string{"token": token}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	decodeBody(t, rec, &fail)
	require.Equal(t, FailInvalidToken, fail.Error)

	// The replacement works, and the new password logs in
	rec = doJSON(t, router, "POST", "/api/auth?action=verify", map[string]string{"token": changed.Token}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, "POST", "/api/auth?action=logout", nil, changed.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, router, "POST", "/api/auth?action=verify", map[string]string{"token": changed.Token}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	mustLogin(t, router, "admin", "second-password")
}

// A login against a nonexistent account must be indistinguishable from a login
// with the wrong password, down to the exact bytes of the response.
func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	s := newTestServer(t, nil)
	router := s.SetupRouter()

	missingUser := login(t, router, "no-such-user", "first-password")
	wrongPassword := login(t, router, "admin", "wrong-password")

	require.Equal(t, http.StatusUnauthorized, missingUser.Code)
	require.Equal(t, wrongPassword.Code, missingUser.Code)
	require.Equal(t, wrongPassword.Body.Bytes(), missingUser.Body.Bytes())
}

func TestLoginRateLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimitMaxAttempts = 2
	})
	router := s.SetupRouter()

	require.Equal(t, http.StatusUnauthorized, login(t, router, "admin", "bad").Code)
	require.Equal(t, http.StatusUnauthorized, login(t, router, "admin", "bad").Code)

	// Blocked now, even with the correct password
	rec := login(t, router, "admin", "first-password")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	fail := struct {
		Error            string `json:"error"`
		RemainingMinutes int    `json:"remaining_minutes"`
	}{}
	decodeBody(t, rec, &fail)
	require.Equal(t, FailRateLimited, fail.Error)
	require.Greater(t, fail.RemainingMinutes, 0)

	// The identifier includes the username, so other accounts are unaffected
	require.Equal(t, http.StatusUnauthorized, login(t, router, "other", "bad").Code)

	// The block shows up in the security event log
	events := s.eventSink.Recent(context.Background())
	blocked := false
	for _, ev := range events {
		if ev.Type == seclog.EventRateLimitBlock {
			blocked = true
		}
	}
	require.True(t, blocked)
}

func TestVehicleRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	router := s.SetupRouter()

	// Mutations require a token, reads don't
	rec := doJSON(t, router, "POST", "/api/vehicles", map[string]any{"name": "Kombi"}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	fail := struct {
		Error string `json:"error"`
	}{}
	decodeBody(t, rec, &fail)
	require.Equal(t, FailInvalidToken, fail.Error)

	token := mustLogin(t, router, "admin", "first-password")

	rec = doJSON(t, router, "POST", "/api/vehicles", map[string]any{
		"name":          "Kombi Classic",
		"type":          "campervan",
		"price_per_day": 120,
		"available":     true,
	}, token)
	require.Equal(t, http.StatusOK, rec.Code)
	created := struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}{}
	decodeBody(t, rec, &created)
	require.Equal(t, int64(1), created.ID)

	rec = doJSON(t, router, "POST", "/api/vehicles", map[string]any{"name": ""}, token)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, "GET", "/api/vehicles", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := []struct {
		Name string `json:"name"`
	}{}
	decodeBody(t, rec, &list)
	require.Len(t, list, 1)
	require.Equal(t, "Kombi Classic", list[0].Name)

	require.Equal(t, http.StatusOK, doJSON(t, router, "GET", "/api/vehicles/1", nil, "").Code)
	require.Equal(t, http.StatusNotFound, doJSON(t, router, "GET", "/api/vehicles/99", nil, "").Code)

	rec = doJSON(t, router, "PUT", "/api/vehicles/1", map[string]any{
		"name":          "Kombi Classic",
		"price_per_day": 135,
	}, token)
	require.Equal(t, http.StatusOK, rec.Code)
	// The response carries the stored record, including the original creation time
	updated := struct {
		CreatedAt time.Time `json:"created_at"`
	}{}
	decodeBody(t, rec, &updated)
	require.False(t, updated.CreatedAt.IsZero())
	require.Equal(t, float64(135), s.Site.VehicleByID(context.Background(), 1).PricePerDay)

	require.Equal(t, http.StatusNotFound, doJSON(t, router, "PUT", "/api/vehicles/99", map[string]any{"name": "x"}, token).Code)

	require.Equal(t, http.StatusOK, doJSON(t, router, "DELETE", "/api/vehicles/1", nil, token).Code)
	require.Equal(t, http.StatusNotFound, doJSON(t, router, "DELETE", "/api/vehicles/1", nil, token).Code)
}

func TestSettingsRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	router := s.SetupRouter()

	require.Equal(t, http.StatusUnauthorized, doJSON(t, router, "PUT", "/api/settings", map[string]any{"site_name": "Atlas Vans"}, "").Code)

	token := mustLogin(t, router, "admin", "first-password")
	rec := doJSON(t, router, "PUT", "/api/settings", map[string]any{"site_name": "Atlas Vans", "email": "hello@atlasvans.example"}, token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, "GET", "/api/settings", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	settings := struct {
		SiteName string `json:"site_name"`
	}{}
	decodeBody(t, rec, &settings)
	require.Equal(t, "Atlas Vans", settings.SiteName)
}

func TestUploadRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	router := s.SetupRouter()
	token := mustLogin(t, router, "admin", "first-password")

	img := bytes.Buffer{}
	require.NoError(t, png.Encode(&img, image.NewGray(image.Rect(0, 0, 4, 4))))

	require.Equal(t, http.StatusUnauthorized, doRaw(t, router, "POST", "/api/upload?type=logo", bytes.NewReader(img.Bytes()), "").Code)
	require.Equal(t, http.StatusBadRequest, doRaw(t, router, "POST", "/api/upload", bytes.NewReader(img.Bytes()), token).Code)
	require.Equal(t, http.StatusBadRequest, doRaw(t, router, "POST", "/api/upload?type=banner", bytes.NewReader(img.Bytes()), token).Code)
	require.Equal(t, http.StatusBadRequest, doRaw(t, router, "POST", "/api/upload?type=logo", bytes.NewReader([]byte("<html>nope</html>")), token).Code)

	rec := doRaw(t, router, "POST", "/api/upload?type=logo", bytes.NewReader(img.Bytes()), token)
	require.Equal(t, http.StatusOK, rec.Code)
	uploaded := struct {
		Success  bool   `json:"success"`
		Filename string `json:"filename"`
		URL      string `json:"url"`
	}{}
	decodeBody(t, rec, &uploaded)
	require.True(t, uploaded.Success)
	require.Equal(t, "/uploads/"+uploaded.Filename, uploaded.URL)

	// The blob landed in storage, byte for byte
	stored, err := s.Store.ReadBlob(context.Background(), "uploads/"+uploaded.Filename)
	require.NoError(t, err)
	require.Equal(t, img.Bytes(), stored)

	// Multipart uploads work too
	form := bytes.Buffer{}
	mw := multipart.NewWriter(&form)
	fw, err := mw.CreateFormFile("file", "logo.png")
	require.NoError(t, err)
	_, err = fw.Write(img.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/upload?type=logo", bytes.NewReader(form.Bytes()))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("User-Agent", "siteapi-test/1.0")
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// An oversized body is cut off at the transport, before validation
	s.Images.MaxBytes = 16
	rec = doRaw(t, router, "POST", "/api/upload?type=logo", bytes.NewReader(make([]byte, 64)), token)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestUserAndEventRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	router := s.SetupRouter()
	token := mustLogin(t, router, "admin", "first-password")

	rec := doJSON(t, router, "POST", "/api/users", map[string]string{
		"username": "sam",
		"name":     "Sam",
		"password": "sams-password",
	}, token)
	require.Equal(t, http.StatusOK, rec.Code)

	// Duplicate usernames are rejected
	rec = doJSON(t, router, "POST", "/api/users", map[string]string{
		"username": "sam",
		"name":     "Sam Again",
		"password": "sams-password",
	}, token)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, "GET", "/api/users", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	users := []struct {
		Username string `json:"username"`
	}{}
	decodeBody(t, rec, &users)
	require.Len(t, users, 2)

	rec = doJSON(t, router, "GET", "/api/events", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	events := []seclog.Event{}
	decodeBody(t, rec, &events)
	found := false
	for _, ev := range events {
		if ev.Type == seclog.EventLoginSuccess && ev.Username == "admin" {
			found = true
		}
	}
	require.True(t, found)
}
