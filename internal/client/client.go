// Package client is a thin caller for the HTTP binding of the chat service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"roomchat/internal/api"
	"roomchat/internal/models"
	"roomchat/internal/server"
)

// ErrPasswordWrong is returned by Signup when the user exists with another
// password.
var ErrPasswordWrong = errors.New("password wrong")

// Client calls the service as one user. It remembers a cursor per room so
// that Poll only returns messages it has not seen.
type Client struct {
	baseURL string
	http    *http.Client
	self    *models.Client

	mu      sync.Mutex
	cursors map[string]uint64
}

func New(baseURL, username string) *Client {
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		self:    models.NewClient(username),
		cursors: make(map[string]uint64),
	}
}

func (c *Client) Username() string {
	return c.self.Username()
}

// call posts req to /rpc/<method>. Non-2xx replies become *server.Status.
func (c *Client) call(ctx context.Context, method string, req any) (*models.ServerResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/"+method, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(api.HeaderRequestID, uuid.NewString())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w. Is the server running?", method, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		var e api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Code == "" {
			return nil, fmt.Errorf("%s failed (Status: %d)", method, resp.StatusCode)
		}
		return nil, &server.Status{Code: e.Code, Message: e.Error}
	}

	var out models.ServerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// Signup registers or authenticates the user.
func (c *Client) Signup(ctx context.Context, password string) (models.ResponseCode, error) {
	resp, err := c.call(ctx, "Signup", models.SignupRequest{Client: c.self, Password: password})
	if err != nil {
		return "", err
	}
	if resp.Code == models.ResponsePasswordWrong {
		return resp.Code, ErrPasswordWrong
	}
	return resp.Code, nil
}

func (c *Client) CreateRoom(ctx context.Context, room string, password *string, historyVisible bool) error {
	_, err := c.call(ctx, "CreateRoom", models.CreateRoomRequest{
		Client:         c.self,
		RoomName:       room,
		Password:       password,
		HistoryVisible: historyVisible,
	})
	return err
}

// Join enters the room and returns its full log. The room cursor is moved to
// the end of that log.
func (c *Client) Join(ctx context.Context, room string) ([]models.Message, error) {
	resp, err := c.call(ctx, "Join", models.JoinRequest{Client: c.self, RoomName: room})
	if err != nil {
		return nil, err
	}
	c.setCursor(room, uint64(len(resp.Messages)))
	return resp.Messages, nil
}

// Heartbeat fetches messages from msgnum without touching the stored cursor.
func (c *Client) Heartbeat(ctx context.Context, room string, msgnum uint64) ([]models.Message, error) {
	resp, err := c.call(ctx, "Heartbeat", models.HeartbeatRequest{Client: c.self, RoomName: room, MsgNum: msgnum})
	if err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Poll sends a heartbeat from the stored cursor and advances it by every
// delivered message, including the caller's own.
func (c *Client) Poll(ctx context.Context, room string) ([]models.Message, error) {
	cursor := c.Cursor(room)
	msgs, err := c.Heartbeat(ctx, room, cursor)
	if err != nil {
		return nil, err
	}
	c.setCursor(room, cursor+uint64(len(msgs)))
	return msgs, nil
}

func (c *Client) Send(ctx context.Context, room, text string) error {
	_, err := c.call(ctx, "Send", models.SendRequest{
		Client:   c.self,
		RoomName: room,
		Message:  models.NewTextMessage(c.self, text, time.Now().UnixMilli()),
	})
	return err
}

func (c *Client) ExitRoom(ctx context.Context, room string) error {
	_, err := c.call(ctx, "ExitRoom", models.ExitRoomRequest{Client: c.self, RoomName: room})
	return err
}

func (c *Client) GetRooms(ctx context.Context) ([]models.RoomInfo, error) {
	resp, err := c.call(ctx, "GetRooms", models.GetRoomsRequest{Client: c.self})
	if err != nil {
		return nil, err
	}
	return resp.RoomInfos, nil
}

func (c *Client) GetUsers(ctx context.Context) ([]models.UserInfo, error) {
	resp, err := c.call(ctx, "GetUsers", models.GetUsersRequest{Client: c.self})
	if err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// Cursor is the number of messages of room already delivered to this client.
func (c *Client) Cursor(room string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursors[room]
}

func (c *Client) setCursor(room string, n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursors[room] = n
}
