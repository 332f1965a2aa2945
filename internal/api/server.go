package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"collide2d/internal/render"
	"collide2d/internal/world"

	"github.com/go-chi/chi/v5"
)

// ServerOptions configures NewServer. Zero values select defaults.
type ServerOptions struct {
	Origins           []string
	RateLimit         *RateLimitConfig
	AdminToken        string
	Renderer          *render.Renderer
	BroadcastInterval time.Duration
}

// Server is the HTTP API plus the viewer WebSocket.
type Server struct {
	engine      *world.Engine
	opts        ServerOptions
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
}

// NewServer wires the router and hub around engine.
//
// Background workers do not start until Start is called, so tests can
// construct the server and use Router() without goroutines or listeners
// other than the rate limiter sweeper.
func NewServer(engine *world.Engine, opts ServerOptions) *Server {
	rlCfg := DefaultRateLimitConfig
	if opts.RateLimit != nil {
		rlCfg = *opts.RateLimit
	}

	s := &Server{
		engine:      engine,
		opts:        opts,
		wsHub:       NewWebSocketHub(NewOriginChecker(opts.Origins)),
		rateLimiter: NewIPRateLimiter(rlCfg),
	}
	s.router = NewRouter(RouterConfig{
		Engine:      engine,
		RateLimiter: s.rateLimiter,
		CORSOrigins: opts.Origins,
		Renderer:    opts.Renderer,
		AdminToken:  opts.AdminToken,
	})
	// The hub lives on the server, so its route is added here rather than
	// in NewRouter.
	s.router.Get("/ws", s.wsHub.HandleWebSocket)
	return s
}

// startWorkers runs the hub and hooks it to the engine tick.
func (s *Server) startWorkers() {
	go s.wsHub.Run()
	s.wsHub.StartBroadcastLoop(s.engine, s.opts.BroadcastInterval)
	s.engine.OnStep(s.wsHub.BroadcastTransitions)
}

// Start runs background workers and serves until Shutdown. It returns nil
// after a clean shutdown.
func (s *Server) Start(addr string) error {
	s.startWorkers()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("🌐 API server starting on %s", addr)
	log.Printf("🔭 Viewer socket: ws://localhost%s/ws", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
//
//	server := api.NewServer(engine, api.ServerOptions{})
//	ts := httptest.NewServer(server.Router())
//	defer ts.Close()
//	resp, _ := http.Get(ts.URL + "/api/pairs")
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the viewer hub.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Shutdown stops accepting requests, disconnects viewers and stops the
// rate limiter sweeper.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.engine.OnStep(nil)
	s.wsHub.Stop()
	s.rateLimiter.Stop()
	return err
}
