// Package api binds the chat handlers to HTTP and WebSocket transports.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"roomchat/internal/models"
	"roomchat/internal/server"
)

// Methods lists every RPC method exposed under /rpc.
var Methods = []string{
	"Signup",
	"Join",
	"Heartbeat",
	"Send",
	"CreateRoom",
	"ExitRoom",
	"GetRooms",
	"GetUsers",
}

// ErrorResponse is the body of every failed call.
type ErrorResponse struct {
	Code  server.Code `json:"code"`
	Error string      `json:"error"`
}

type API struct {
	srv *server.Server
	log *zerolog.Logger
}

func New(srv *server.Server, logger *zerolog.Logger) *API {
	return &API{srv: srv, log: logger}
}

// Register mounts the RPC routes on r.
func (a *API) Register(r gin.IRouter) {
	rpc := r.Group("/rpc")
	rpc.POST("/Signup", handle(a, "Signup", a.srv.Signup))
	rpc.POST("/Join", handle(a, "Join", a.srv.Join))
	rpc.POST("/Heartbeat", handle(a, "Heartbeat", a.srv.Heartbeat))
	rpc.POST("/Send", handle(a, "Send", a.srv.Send))
	rpc.POST("/CreateRoom", handle(a, "CreateRoom", a.srv.CreateRoom))
	rpc.POST("/ExitRoom", handle(a, "ExitRoom", a.srv.ExitRoom))
	rpc.POST("/GetRooms", handle(a, "GetRooms", a.srv.GetRooms))
	rpc.POST("/GetUsers", handle(a, "GetUsers", a.srv.GetUsers))
	rpc.GET("/ws", a.HandleWS)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
}

func handle[T any](a *API, method string, call func(context.Context, *T) (*models.ServerResponse, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req T
		if err := c.ShouldBindJSON(&req); err != nil {
			a.log.Debug().Err(err).Str("method", method).Msg("invalid request body")
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Code:  server.CodeInvalidArgument,
				Error: "invalid request body",
			})
			return
		}

		resp, err := call(c.Request.Context(), &req)
		if err != nil {
			code := server.CodeOf(err)
			if code == server.CodeInternal {
				a.log.Error().Err(err).Str("method", method).Msg("request failed")
			}
			c.JSON(HTTPStatus(code), ErrorResponse{Code: code, Error: err.Error()})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

// HTTPStatus maps a handler error code to an HTTP status.
func HTTPStatus(code server.Code) int {
	switch code {
	case server.CodeInvalidArgument:
		return http.StatusBadRequest
	case server.CodeNotFound:
		return http.StatusNotFound
	case server.CodeAlreadyExists:
		return http.StatusConflict
	case server.CodeFailedPrecondition:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}
