package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"roomchat/internal/server"
)

type AdminHandler struct {
	srv *server.Server
	log *zerolog.Logger
}

func NewAdminHandler(srv *server.Server, logger *zerolog.Logger) *AdminHandler {
	return &AdminHandler{srv: srv, log: logger}
}

type FlushResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Register mounts the admin routes on r.
func (h *AdminHandler) Register(r gin.IRouter) {
	admin := r.Group("/admin")
	admin.GET("/stats", h.StatsHandler)
	admin.POST("/flush", h.FlushHandler)
}

func (h *AdminHandler) StatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.srv.Stats())
}

// FlushHandler forces a write of the full state to the store.
func (h *AdminHandler) FlushHandler(c *gin.Context) {
	if err := h.srv.Flush(c.Request.Context()); err != nil {
		h.log.Error().Err(err).Msg("admin flush failed")
		c.JSON(http.StatusInternalServerError, FlushResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	h.log.Info().Msg("state flushed by admin")
	c.JSON(http.StatusOK, FlushResponse{Success: true})
}
