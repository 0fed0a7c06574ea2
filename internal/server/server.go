// Package server wires the theme service, tile store and decoder pool into
// the HTTP surface.
package server

import (
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/sirupsen/logrus"

	"github.com/joeblew999/plat-style/internal/api"
	"github.com/joeblew999/plat-style/internal/db"
	"github.com/joeblew999/plat-style/internal/decoder"
	"github.com/joeblew999/plat-style/internal/service"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	Workers int
}

// Server is the plat-style HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	services *api.Services
	pool     *decoder.Pool
}

// New creates a new server.
func New(cfg Config) *Server {
	mux := http.NewServeMux()

	humaConfig := huma.DefaultConfig("plat-style API", "1.0.0")
	humaConfig.Info.Description = "Map style engine API: themes, style evaluation and tile decoding."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}

	humaAPI := humago.New(mux, humaConfig)

	themeService := service.NewThemeService(cfg.DataDir)
	pool := decoder.NewPool(themeService, cfg.Workers)

	services := &api.Services{
		Theme: themeService,
		Pool:  pool,
	}

	// The tile store is optional; without it the decode API only accepts
	// inline buffers.
	if conn, err := db.Get(db.Config{DataDir: cfg.DataDir, DBName: "tiles"}); err == nil {
		if store, err := service.NewTileStore(conn); err == nil {
			services.Tiles = store
		} else {
			logrus.WithError(err).Warn("tile store unavailable")
		}
	}

	s := &Server{
		config:   cfg,
		mux:      mux,
		humaAPI:  humaAPI,
		services: services,
		pool:     pool,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Close stops the decoder pool and releases server resources.
func (s *Server) Close() error {
	s.pool.Close()
	return db.Close()
}

// OpenAPI returns the generated OpenAPI spec.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

func (s *Server) routes() {
	handler := api.NewAPIHandler(s.services)
	huma.AutoRegister(s.humaAPI, handler)

	events := api.NewEventHandler()
	events.RegisterRoutes(s.humaAPI)
}
