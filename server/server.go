package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/atlasvans/siteapi/pkg/kvstore"
	"github.com/atlasvans/siteapi/server/authdb"
	"github.com/atlasvans/siteapi/server/config"
	"github.com/atlasvans/siteapi/server/imageproc"
	"github.com/atlasvans/siteapi/server/ratelimit"
	"github.com/atlasvans/siteapi/server/seclog"
	"github.com/atlasvans/siteapi/server/sitedb"
	"github.com/cyclopcam/logs"
)

type Server struct {
	Log     logs.Log
	Config  *config.Config
	Store   *kvstore.Store
	Auth    *authdb.AuthDB
	Site    *sitedb.SiteDB
	Limiter *ratelimit.Limiter
	Events  seclog.Sink
	Images  *imageproc.Processor

	eventSink  *seclog.StoreSink
	httpServer *http.Server
}

func NewServer(log logs.Log, cfg *config.Config) (*Server, error) {
	backend, err := newBackend(log, cfg)
	if err != nil {
		return nil, err
	}
	store := kvstore.NewStore(log, backend)
	events := seclog.NewStoreSink(log, store)
	return &Server{
		Log:       log,
		Config:    cfg,
		Store:     store,
		Auth:      authdb.NewAuthDB(log, store),
		Site:      sitedb.NewSiteDB(log, store),
		Limiter:   ratelimit.NewLimiter(log, store, events, cfg.RateLimitMaxAttempts, ratelimit.WindowFromMinutes(cfg.RateLimitWindowMinutes)),
		Events:    events,
		Images:    imageproc.NewProcessor(log),
		eventSink: events,
	}, nil
}

// The backend strategy is decided exactly once, here, at startup
func newBackend(log logs.Log, cfg *config.Config) (kvstore.Backend, error) {
	switch cfg.StorageBackend {
	case config.BackendFile:
		return kvstore.NewFileBackend(log, cfg.DataPath)
	case config.BackendGCS:
		return kvstore.NewGCSBackend(log, cfg.GCSBucket)
	case config.BackendS3:
		return kvstore.NewS3Backend(log, kvstore.S3Config{
			Region:       cfg.S3.Region,
			Bucket:       cfg.S3.Bucket,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			BaseEndpoint: cfg.S3.BaseEndpoint,
		})
	}
	return nil, fmt.Errorf("Unknown storage backend %q", cfg.StorageBackend)
}

// Bootstrap makes sure the initial admin account exists
func (s *Server) Bootstrap(ctx context.Context) error {
	_, err := s.Auth.Bootstrap(ctx)
	return err
}

// ListenAndServe blocks, serving the API
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%v", s.Config.Port)
	s.Log.Infof("Listening on %v", addr)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.SetupRouter(),
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
