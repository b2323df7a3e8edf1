// Package presence tracks which users are online in which room and expires
// users that stopped sending heartbeats.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultInterval   = time.Second
	DefaultStaleAfter = 5000 * time.Millisecond
)

// Eviction records one user removed from one room by Expire.
type Eviction struct {
	Room     string
	Username string
}

// Tracker holds per-room online sets and a global last-active map.
// Last activity is tracked per user, not per room: a heartbeat for any room
// keeps the user online in every room it is listed in.
type Tracker struct {
	online     map[string]map[string]struct{}
	lastActive map[string]int64
	uptime     int64

	staleAfter time.Duration
	now        func() time.Time
	log        zerolog.Logger

	mu sync.Mutex
}

type Option func(*Tracker)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func WithStaleAfter(d time.Duration) Option {
	return func(t *Tracker) { t.staleAfter = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

func New(opts ...Option) *Tracker {
	t := &Tracker{
		online:     make(map[string]map[string]struct{}),
		lastActive: make(map[string]int64),
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.uptime = t.now().UnixMilli()
	return t
}

// AddRoom makes an empty online set for room if there is none.
func (t *Tracker) AddRoom(room string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.online[room]; !ok {
		t.online[room] = make(map[string]struct{})
	}
}

// MarkOnline puts username into room's online set and refreshes its activity
// so that every online user has a last-active timestamp.
func (t *Tracker) MarkOnline(room, username string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.online[room]
	if !ok {
		set = make(map[string]struct{})
		t.online[room] = set
	}
	set[username] = struct{}{}
	t.lastActive[username] = t.now().UnixMilli()
}

// MarkActive records activity for username at ts (Unix milliseconds).
// It never adds the user to an online set.
func (t *Tracker) MarkActive(username string, ts int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ts > t.lastActive[username] {
		t.lastActive[username] = ts
	}
}

// Touch is MarkActive with the tracker's clock.
func (t *Tracker) Touch(username string) {
	t.MarkActive(username, t.now().UnixMilli())
}

// RemoveOnline drops username from room's online set. Missing entries are
// ignored.
func (t *Tracker) RemoveOnline(room, username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.online[room]
	if !ok {
		return false
	}
	if _, ok := set[username]; !ok {
		return false
	}
	delete(set, username)
	return true
}

// ActiveUsers returns a snapshot of room's online set, sorted by name.
func (t *Tracker) ActiveUsers(room string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	set := t.online[room]
	users := make([]string, 0, len(set))
	for u := range set {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

func (t *Tracker) IsOnline(room, username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.online[room][username]
	return ok
}

// Expire evicts every online user whose last activity is older than the
// stale threshold at now, or who has no recorded activity at all.
func (t *Tracker) Expire(now time.Time) []Eviction {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Add(-t.staleAfter).UnixMilli()

	var evicted []Eviction
	for room, set := range t.online {
		for username := range set {
			last, ok := t.lastActive[username]
			if ok && last >= cutoff {
				continue
			}
			delete(set, username)
			evicted = append(evicted, Eviction{Room: room, Username: username})
		}
	}
	return evicted
}

// Uptime returns the time of the last tick in Unix milliseconds.
func (t *Tracker) Uptime() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.uptime
}

func (t *Tracker) tick() {
	now := t.now()

	t.mu.Lock()
	t.uptime = now.UnixMilli()
	t.mu.Unlock()

	for _, ev := range t.Expire(now) {
		t.log.Debug().Str("room", ev.Room).Str("user", ev.Username).Msg("presence expired")
	}
}

// Run ticks every interval until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.tick()
		case <-ctx.Done():
			return nil
		}
	}
}
