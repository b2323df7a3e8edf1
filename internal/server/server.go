// Package server owns the in-memory chat state and implements the request
// handlers on top of it. Transport bindings call into Server and never touch
// rooms, users or presence directly.
package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/c-pro/geche"
	"github.com/rs/zerolog"

	"roomchat/internal/auth"
	"roomchat/internal/chat"
	"roomchat/internal/presence"
	"roomchat/internal/storage"
)

// Server is the chat state service. All state is owned by the instance; the
// room registry is a name-keyed map with insert-if-absent under one lock,
// and each room guards its own log.
type Server struct {
	rooms    *geche.Locker[string, *chat.Room]
	users    *auth.Service
	presence *presence.Tracker
	store    storage.Store
	log      zerolog.Logger
	now      func() time.Time

	flushMu sync.Mutex
}

type Option func(*Server)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New builds a server. store may be nil, in which case nothing is persisted.
func New(store storage.Store, tracker *presence.Tracker, users *auth.Service, opts ...Option) *Server {
	s := &Server{
		rooms:    geche.NewLocker[string, *chat.Room](geche.NewMapCache[string, *chat.Room]()),
		users:    users,
		presence: tracker,
		store:    store,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces in-memory state with what the store holds.
func (s *Server) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	snapshot, err := s.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	tx := s.rooms.Lock()
	for _, rs := range snapshot.Rooms {
		tx.Set(rs.Name, chat.Restore(rs))
		s.presence.AddRoom(rs.Name)
	}
	tx.Unlock()

	s.users.Restore(snapshot.Users)

	s.log.Info().
		Int("rooms", len(snapshot.Rooms)).
		Int("users", len(snapshot.Users)).
		Msg("state loaded")
	return nil
}

// Flush writes every room and user to the store.
func (s *Server) Flush(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	// Snapshots are taken under flushMu so a later flush never writes older
	// state than an earlier one.
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	snapshot := storage.Snapshot{Users: s.users.Users()}
	for _, room := range s.roomList() {
		snapshot.Rooms = append(snapshot.Rooms, room.Snapshot())
	}

	if err := s.store.FlushAll(ctx, snapshot); err != nil {
		return fmt.Errorf("flush state: %w", err)
	}
	return nil
}

// flushAfter persists state after a mutation. Failures are logged only: the
// in-memory change has already been applied and is kept.
func (s *Server) flushAfter(ctx context.Context, method string) {
	if err := s.Flush(ctx); err != nil {
		s.log.Error().Err(err).Str("method", method).Msg("flush failed")
	}
}

// FindRoom returns the room called name, or nil.
func (s *Server) FindRoom(name string) *chat.Room {
	tx := s.rooms.RLock()
	defer tx.Unlock()

	room, err := tx.Get(name)
	if err != nil {
		return nil
	}
	return room
}

// createRoom inserts room unless the name is taken. The check and the insert
// happen under the same exclusive lock.
func (s *Server) createRoom(cfg chat.Config) (*chat.Room, bool) {
	tx := s.rooms.Lock()
	defer tx.Unlock()

	if existing, err := tx.Get(cfg.Name); err == nil {
		return existing, false
	}
	room := chat.New(cfg)
	tx.Set(cfg.Name, room)
	return room, true
}

// roomList returns all rooms sorted by name.
func (s *Server) roomList() []*chat.Room {
	tx := s.rooms.RLock()
	snapshot := tx.Snapshot()
	tx.Unlock()

	rooms := make([]*chat.Room, 0, len(snapshot))
	for _, r := range snapshot {
		rooms = append(rooms, r)
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].Name < rooms[j].Name
	})
	return rooms
}

// Stats is a summary used by the admin endpoint.
type Stats struct {
	Rooms    int   `json:"rooms"`
	Users    int   `json:"users"`
	Messages int   `json:"messages"`
	Uptime   int64 `json:"uptime"`
}

func (s *Server) Stats() Stats {
	st := Stats{
		Users:  s.users.Len(),
		Uptime: s.presence.Uptime(),
	}
	for _, r := range s.roomList() {
		st.Rooms++
		st.Messages += r.Len()
	}
	return st
}
