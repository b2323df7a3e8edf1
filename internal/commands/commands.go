// Package commands implements the chatctl subcommands.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"roomchat/internal/api"
	"roomchat/internal/client"
	"roomchat/internal/models"
	"roomchat/internal/server"
)

// Signup registers the user or checks the password.
func Signup(ctx context.Context, c *client.Client, password string, out io.Writer) error {
	code, err := c.Signup(ctx, password)
	if errors.Is(err, client.ErrPasswordWrong) {
		return fmt.Errorf("user %s exists with another password", c.Username())
	}
	if err != nil {
		return err
	}

	switch code {
	case models.ResponseCreated:
		fmt.Fprintf(out, "User %s created\n", c.Username())
	default:
		fmt.Fprintf(out, "Signed in as %s\n", c.Username())
	}
	return nil
}

// ParseHistoryFlag accepts the y/n answer used by create.
func ParseHistoryFlag(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "", "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	default:
		return false, fmt.Errorf("history flag must be y or n, got %q", s)
	}
}

func CreateRoom(ctx context.Context, c *client.Client, room string, password *string, historyVisible bool, out io.Writer) error {
	if err := c.CreateRoom(ctx, room, password, historyVisible); err != nil {
		if errors.Is(err, server.ErrAlreadyExists) {
			return fmt.Errorf("room %s already exists", room)
		}
		return err
	}
	fmt.Fprintf(out, "Room %s created\n", room)
	return nil
}

// Join enters the room, prints its history and then polls for new messages
// every interval until ctx is done. The caller's own messages are not
// printed again.
func Join(ctx context.Context, c *client.Client, room string, interval time.Duration, out io.Writer) error {
	history, err := c.Join(ctx, room)
	if err != nil {
		return err
	}
	for _, m := range history {
		printMessage(out, m)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Leave the online set on the way out; ctx is already done.
			exitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = c.ExitRoom(exitCtx, room)
			return nil
		case <-ticker.C:
			msgs, err := c.Poll(ctx, room)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				return err
			}
			for _, m := range msgs {
				if m.Sender() == c.Username() {
					continue
				}
				printMessage(out, m)
			}
		}
	}
}

func Send(ctx context.Context, c *client.Client, room, text string) error {
	return c.Send(ctx, room, text)
}

func ExitRoom(ctx context.Context, c *client.Client, room string, out io.Writer) error {
	if err := c.ExitRoom(ctx, room); err != nil {
		return err
	}
	fmt.Fprintf(out, "Left %s\n", room)
	return nil
}

func ListRooms(ctx context.Context, c *client.Client, out io.Writer) error {
	rooms, err := c.GetRooms(ctx)
	if err != nil {
		return err
	}
	for _, r := range rooms {
		locked := ""
		if r.Password != nil && *r.Password != "" {
			locked = " [password]"
		}
		fmt.Fprintf(out, "%s (owner %s)%s online: %s\n",
			r.Name, r.Owner.Username(), locked, strings.Join(r.OnlineUsers, ", "))
	}
	return nil
}

func ListUsers(ctx context.Context, c *client.Client, out io.Writer) error {
	users, err := c.GetUsers(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		fmt.Fprintln(out, u.Name)
	}
	return nil
}

func printMessage(out io.Writer, m models.Message) {
	ts := time.UnixMilli(m.Time).Format("15:04:05")
	fmt.Fprintf(out, "[%s] %s: %s\n", ts, m.Sender(), m.Bytes)
}

// Stats prints the server counters from the admin API.
func Stats(ctx context.Context, adminAddr string, out io.Writer) error {
	var st server.Stats
	if err := adminCall(ctx, http.MethodGet, adminAddr, "/admin/stats", &st); err != nil {
		return err
	}
	fmt.Fprintf(out, "Rooms:    %d\n", st.Rooms)
	fmt.Fprintf(out, "Users:    %d\n", st.Users)
	fmt.Fprintf(out, "Messages: %d\n", st.Messages)
	fmt.Fprintf(out, "Uptime:   %s\n", time.UnixMilli(st.Uptime).Format(time.RFC3339))
	return nil
}

// Flush asks the server to write its state to disk now.
func Flush(ctx context.Context, adminAddr string, out io.Writer) error {
	var result api.FlushResponse
	if err := adminCall(ctx, http.MethodPost, adminAddr, "/admin/flush", &result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("flush failed: %s", result.Message)
	}
	fmt.Fprintln(out, "State flushed")
	return nil
}

func adminCall(ctx context.Context, method, adminAddr, path string, v any) error {
	url := fmt.Sprintf("http://%s%s", adminAddr, path)
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusInternalServerError {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("admin call failed (Status: %d): %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
