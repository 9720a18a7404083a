// Package server exposes the calibration controller over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/soocke/board-calibrator-go/domain/calibration"
	"github.com/soocke/board-calibrator-go/events"
)

// Server serves calibration state, the rectified board and an SSE event feed.
type Server struct {
	ctrl   calibration.ControllerContract
	hub    *events.EventHub
	logger *slog.Logger
	router *gin.Engine
	srv    *http.Server

	closing   chan struct{} // closed on Shutdown; ends event streams
	closeOnce sync.Once
}

func New(logger *slog.Logger, ctrl calibration.ControllerContract, hub *events.EventHub) *Server {
	s := &Server{ctrl: ctrl, hub: hub, logger: logger, closing: make(chan struct{})}
	s.router = s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(s.logger))
	router.GET("/state", s.getState)
	router.GET("/points", s.getPoints)
	router.GET("/board.png", s.getBoard)
	router.GET("/events", s.getEvents)
	router.POST("/start", s.postStart)
	router.POST("/stop", s.postStop)
	return router
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on addr and serves in the background. It returns the bound
// address, which differs from addr when the port is 0.
func (s *Server) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && s.logger != nil {
			s.logger.Error("http server", "error", err)
		}
	}()
	if s.logger != nil {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
	}
	return ln.Addr().String(), nil
}

// Shutdown ends open event streams, then stops the server, waiting for
// in-flight requests until ctx expires. http.Server.Shutdown does not cancel
// request contexts, so streams are released through the closing channel.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closing) })
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
