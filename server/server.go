package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/AliceSyndrome285/CradleAI/internal/profile"
	"github.com/AliceSyndrome285/CradleAI/server/internal/observability"
	apiv1 "github.com/AliceSyndrome285/CradleAI/server/router/api/v1"
	"github.com/AliceSyndrome285/CradleAI/server/service/chathistory"
	"github.com/AliceSyndrome285/CradleAI/server/service/message"
	"github.com/AliceSyndrome285/CradleAI/store"
)

// Server serves the message API over HTTP.
type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
}

// NewServer wires the store-backed history, the dispatcher and the routes.
// Mutations on one conversation are serialized.
func NewServer(_ context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	s := &Server{
		Profile: profile,
		Store:   store,
	}

	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(middleware.Recover())
	s.echoServer = echoServer

	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})

	metrics := observability.NewMetrics()
	history := chathistory.New(store)
	service := message.NewService(history,
		message.WithGuard(message.NewConversationGuard()),
		message.WithMetrics(metrics),
		message.WithLogger(slog.Default()),
	)
	apiv1.NewAPIV1Service(profile, store, service, metrics).RegisterRoutes(echoServer)
	return s, nil
}

// Handler exposes the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

// Start listens on the profile's address until Shutdown is called.
func (s *Server) Start(_ context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	slog.Info("starting server", "address", address, "mode", s.Profile.Mode, "driver", s.Profile.Driver)
	if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "failed to start server")
	}
	return nil
}

// Shutdown stops the HTTP server and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	slog.Info("server shutting down")
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", slog.String("error", err.Error()))
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", slog.String("error", err.Error()))
	}
	slog.Info("server stopped properly")
}
