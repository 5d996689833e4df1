package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"loungeskip/internal/auth"
	"loungeskip/internal/config"
	"loungeskip/internal/fleet"
	"loungeskip/internal/models"
	"loungeskip/internal/store"
	"loungeskip/internal/youtube"
)

// PairFunc exchanges a user-entered pairing code for the screen's stable id
// and display name.
type PairFunc func(ctx context.Context, code string) (screenID, name string, err error)

// ChannelSearcher finds channels for the whitelist picker.
type ChannelSearcher interface {
	SearchChannels(ctx context.Context, query string) ([]youtube.Channel, error)
}

// Statuses exposes the fleet's live device state to the dashboard.
type Statuses interface {
	Snapshot() []models.DeviceStatus
	Subscribe() chan models.DeviceStatus
	Unsubscribe(ch chan models.DeviceStatus)
}

type Server struct {
	router     chi.Router
	cfgPath    string
	corsOrigin string

	cfgMu sync.Mutex
	cfg   *config.Config

	statuses Statuses
	store    *store.Store
	sessions *auth.Service
	pair     PairFunc
	channels ChannelSearcher
}

type Option func(*Server)

func WithCORSOrigin(origin string) Option {
	return func(s *Server) { s.corsOrigin = origin }
}

func WithFleet(f *fleet.Fleet) Option {
	return func(s *Server) { s.statuses = f }
}

func WithStore(st *store.Store) Option {
	return func(s *Server) { s.store = st }
}

func WithAuth(svc *auth.Service) Option {
	return func(s *Server) { s.sessions = svc }
}

func WithPairFunc(fn PairFunc) Option {
	return func(s *Server) { s.pair = fn }
}

func WithChannelSearcher(cs ChannelSearcher) Option {
	return func(s *Server) { s.channels = cs }
}

func NewServer(cfg *config.Config, cfgPath string, opts ...Option) *Server {
	srv := &Server{
		router:  chi.NewRouter(),
		cfg:     cfg,
		cfgPath: cfgPath,
	}
	for _, o := range opts {
		o(srv)
	}
	srv.router.Use(middleware.Logger)
	srv.router.Use(middleware.Recoverer)
	srv.routes()
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
