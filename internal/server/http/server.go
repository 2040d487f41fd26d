// Package http exposes the auth and knowledge routes over gin.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zhangleigang/knowledge-api/internal/logging"
	"github.com/zhangleigang/knowledge-api/internal/server/knowledge"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	address string
	auth    AuthService
	dataset *knowledge.Dataset
	logger  logging.Logger
	devMode bool
	engine  *gin.Engine
}

// NewServer builds the router. devMode only changes the login success
// message, mirroring the synthetic identity exchanger.
func NewServer(address string, l logging.Logger, as AuthService, ds *knowledge.Dataset, devMode bool) *Server {
	s := &Server{
		address: address,
		auth:    as,
		dataset: ds,
		logger:  l.With("module", "http_server"),
		devMode: devMode,
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(s.logger), recovery(s.logger))

	r.GET("/health", s.health)

	authGroup := r.Group("/api/auth")
	authGroup.POST("/login", s.login)
	authGroup.POST("/phone-login", s.phoneLogin)
	authGroup.POST("/check", s.check)
	authGroup.POST("/update-profile", s.updateProfile)
	authGroup.GET("/me", RequireAuth(s.auth, s.logger), s.me)

	api := r.Group("/api", OptionalAuth(s.auth, s.logger))
	api.GET("/categories", s.categories)
	api.GET("/questions", s.questions)
	api.GET("/questions/:id", s.question)
	api.GET("/knowledge/full", s.full)
	api.GET("/knowledge/version", s.version)

	r.NoRoute(s.notFound)

	return r
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
