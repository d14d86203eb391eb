package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cbodonnell/gameportal/pkg/api/handlers"
	"github.com/cbodonnell/gameportal/pkg/api/middleware"
	authproviders "github.com/cbodonnell/gameportal/pkg/auth/providers"
	"github.com/cbodonnell/gameportal/pkg/catalog"
	"github.com/cbodonnell/gameportal/pkg/log"
	"github.com/cbodonnell/gameportal/pkg/network"
	"github.com/gorilla/mux"
)

type APIServer struct {
	server  *http.Server
	tls     *TLSConfig
	network *network.NetworkManager
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewAPIServerOptions struct {
	Port         int
	TLS          *TLSConfig
	AuthProvider authproviders.AuthProvider
	Catalog      *catalog.Catalog
	Network      *network.NetworkManager
}

// NewAPIServer creates a new http.Server that serves the game catalog and
// the websocket session endpoint
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	return &APIServer{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", opts.Port),
			Handler: NewRouter(opts),
		},
		tls:     opts.TLS,
		network: opts.Network,
	}
}

// NewRouter builds the routes of the API server.
func NewRouter(opts NewAPIServerOptions) *mux.Router {
	authMiddleware := middleware.NewAuthMiddleware(opts.AuthProvider)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", handlers.HandleHealthz(opts.Catalog, opts.Network.ClientManager.Count)).Methods(http.MethodGet)
	r.HandleFunc("/ws", opts.Network.HandleWS)

	games := r.PathPrefix("/games").Subrouter()
	games.Use(middleware.CORS, authMiddleware)
	games.HandleFunc("", handlers.HandleListGames(opts.Catalog)).Methods(http.MethodGet, http.MethodOptions)
	games.HandleFunc("/{gameSpecID}", handlers.HandleGetGame(opts.Catalog)).Methods(http.MethodGet, http.MethodOptions)
	return r
}

// Start starts the APIServer
func (s *APIServer) Start() {
	var listenAndServe func() error
	if s.tls != nil {
		log.Info("API server listening on %s with TLS", s.server.Addr)
		listenAndServe = func() error {
			return s.server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("API server listening on %s", s.server.Addr)
		listenAndServe = s.server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("API server closed")
			return
		}
		log.Error("API server error: %v", err)
	}
}

// Stop stops the APIServer. Hijacked websocket connections are not
// tracked by http.Server, so they are closed here.
func (s *APIServer) Stop(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	s.network.ClientManager.CloseAll()
	return err
}
