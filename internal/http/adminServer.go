package http

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"roomchat/internal/api"
	"roomchat/internal/server"
)

// AdminServer serves operator endpoints. It is meant to listen on a
// loopback address only.
type AdminServer struct {
	server *http.Server
	log    *zerolog.Logger
	wg     sync.WaitGroup
}

func NewAdminServer(srv *server.Server, addr string, logger *zerolog.Logger) *AdminServer {
	r := gin.New()
	r.Use(gin.Recovery(), api.LoggerMiddleware(logger))
	api.NewAdminHandler(srv, logger).Register(r)

	if addr == "" {
		addr = "localhost:15536"
	}

	return &AdminServer{
		server: &http.Server{
			Addr:    addr,
			Handler: r,
		},
		log: logger,
	}
}

func (s *AdminServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("admin api started")
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *AdminServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
