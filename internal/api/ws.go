package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"roomchat/internal/models"
	"roomchat/internal/server"
)

// Frame is one RPC call sent over the WebSocket binding.
type Frame struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Body   json.RawMessage `json:"body"`
}

// Reply answers the Frame with the same ID.
type Reply struct {
	ID       string                 `json:"id"`
	Response *models.ServerResponse `json:"response,omitempty"`
	Error    *ErrorResponse         `json:"error,omitempty"`
}

type wsConnection interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

type dispatchFunc func(ctx context.Context, body json.RawMessage) (*models.ServerResponse, error)

func decode[T any](call func(context.Context, *T) (*models.ServerResponse, error)) dispatchFunc {
	return func(ctx context.Context, body json.RawMessage) (*models.ServerResponse, error) {
		var req T
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				return nil, &server.Status{Code: server.CodeInvalidArgument, Message: "invalid request body"}
			}
		}
		return call(ctx, &req)
	}
}

// Dispatcher routes frames to the handler layer by method name.
type Dispatcher map[string]dispatchFunc

func NewDispatcher(srv *server.Server) Dispatcher {
	return Dispatcher{
		"Signup":     decode(srv.Signup),
		"Join":       decode(srv.Join),
		"Heartbeat":  decode(srv.Heartbeat),
		"Send":       decode(srv.Send),
		"CreateRoom": decode(srv.CreateRoom),
		"ExitRoom":   decode(srv.ExitRoom),
		"GetRooms":   decode(srv.GetRooms),
		"GetUsers":   decode(srv.GetUsers),
	}
}

// Call runs one frame and builds its reply.
func (d Dispatcher) Call(ctx context.Context, f Frame) Reply {
	call, ok := d[f.Method]
	if !ok {
		return Reply{ID: f.ID, Error: &ErrorResponse{
			Code:  server.CodeInvalidArgument,
			Error: "unknown method " + f.Method,
		}}
	}

	resp, err := call(ctx, f.Body)
	if err != nil {
		return Reply{ID: f.ID, Error: &ErrorResponse{Code: server.CodeOf(err), Error: err.Error()}}
	}
	return Reply{ID: f.ID, Response: resp}
}

// Connection serves RPC frames from one WebSocket in arrival order.
type Connection struct {
	ws       wsConnection
	dispatch Dispatcher
	log      *zerolog.Logger
	frames   chan Frame
	errorCh  chan error
}

func NewConnection(dispatch Dispatcher, ws wsConnection, logger *zerolog.Logger) *Connection {
	return &Connection{
		ws:       ws,
		dispatch: dispatch,
		log:      logger,
		frames:   make(chan Frame),
		errorCh:  make(chan error, 2),
	}
}

// Handle runs until the peer disconnects or ctx is cancelled.
func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.errorCh <- c.pumpFrames(ctx)
		cancel()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	}()

	// The first loop to finish decides the result; mainLoop returns nil on
	// cancellation so an outer cancel ends the connection cleanly.
	err := <-c.errorCh
	_ = c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) pumpFrames(ctx context.Context) error {
	for {
		var f Frame
		if err := c.ws.ReadJSON(&f); err != nil {
			return err
		}
		select {
		case c.frames <- f:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case f := <-c.frames:
			reply := c.dispatch.Call(ctx, f)
			if reply.Error != nil && reply.Error.Code == server.CodeInternal {
				c.log.Error().Str("method", f.Method).Str("error", reply.Error.Error).Msg("ws request failed")
			}
			if err := c.ws.WriteJSON(reply); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWS upgrades the request and serves RPC frames on it.
func (a *API) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.log.Debug().Err(err).Msg("error upgrading to websocket")
		return
	}

	a.log.Debug().Str("remote", c.Request.RemoteAddr).Msg("websocket connected")
	conn := NewConnection(NewDispatcher(a.srv), ws, a.log)
	if err := conn.Handle(c.Request.Context()); err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		a.log.Debug().Err(err).Msg("websocket closed")
	}
}
