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

type APIServer struct {
	server *http.Server
	log    *zerolog.Logger
	wg     sync.WaitGroup
}

func NewAPIServer(srv *server.Server, addr string, logger *zerolog.Logger) *APIServer {
	r := gin.New()
	r.Use(gin.Recovery(), api.RequestIDMiddleware(), api.LoggerMiddleware(logger))
	api.New(srv, logger).Register(r)

	if addr == "" {
		addr = "127.0.0.1:15535"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: r,
		},
		log: logger,
	}
}

func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *APIServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("api server started")
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
