// Package server exposes a hub over HTTP: triggering events, streaming them
// as server sent events and reading the daemon's logs.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/mostlygeek/microevent/config"
	"github.com/mostlygeek/microevent/event"
	"github.com/mostlygeek/microevent/logmon"
)

type Server struct {
	sync.Mutex

	hub        *event.Hub
	logger     *logmon.LogMonitor
	ginEngine  *gin.Engine
	httpServer *http.Server
	sseBuffer  int

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

func New(hub *event.Hub, logger *logmon.LogMonitor, sseBuffer int) *Server {
	if sseBuffer < 1 {
		sseBuffer = 1
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	s := &Server{
		hub:            hub,
		logger:         logger,
		ginEngine:      gin.New(),
		sseBuffer:      sseBuffer,
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
	}

	s.ginEngine.Use(gin.Recovery(), corsMiddleware())

	// in api.go
	apiGroup := s.ginEngine.Group("/api")
	{
		apiGroup.POST("/emit/:types", s.emitHandler)
		apiGroup.GET("/events", s.streamEventsHandler)
		apiGroup.GET("/listeners", s.listListenersHandler)
	}

	// in loghandlers.go
	s.ginEngine.GET("/logs", s.sendLogsHandler)
	s.ginEngine.GET("/logs/stream", s.streamLogsHandler)

	// Disable console color for testing
	gin.DisableConsoleColor()

	return s
}

// Run serves until Shutdown is called.
func (s *Server) Run(addr string) error {
	s.Lock()
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.ginEngine,
	}
	srv := s.httpServer
	s.Unlock()

	s.logger.Infof("microevent listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.ginEngine.ServeHTTP(w, r)
}

// Shutdown ends open streams and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownCancel()

	s.Lock()
	srv := s.httpServer
	s.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// RunHooks triggers the configured startup events.
func (s *Server) RunHooks(hooks config.HooksConfig) {
	for _, cmd := range hooks.OnStartup.Commands {
		s.logger.Debugf("startup hook: emit %q with %d args", cmd.Types, len(cmd.Args))
		s.hub.Trigger(cmd.Types, cmd.Args...)
	}
}
