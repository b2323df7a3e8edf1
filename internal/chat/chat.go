package chat

import (
	"errors"
	"fmt"
	"sync"

	"roomchat/internal/models"
)

var (
	ErrCursorAhead = errors.New("cursor is past the end of the log")
)

// Room is a named channel with an append-only message log.
// Indices into Messages are stable for the life of the room and double as
// the sync cursor space.
type Room struct {
	Name           string
	CreatedTime    int64
	HistoryVisible bool
	Password       *string
	Owner          *models.Client

	messages []models.Message
	members  []*models.Client
	memberIx map[string]int

	mux sync.RWMutex
}

type Config struct {
	Name           string
	CreatedTime    int64
	HistoryVisible bool
	Password       *string
	Owner          *models.Client
}

func New(config Config) *Room {
	r := &Room{
		Name:           config.Name,
		CreatedTime:    config.CreatedTime,
		HistoryVisible: config.HistoryVisible,
		Password:       config.Password,
		Owner:          config.Owner,
		memberIx:       make(map[string]int),
	}
	if config.Owner != nil {
		r.addClient(config.Owner)
	}
	return r
}

// Append adds msg to the end of the log and returns its index.
func (r *Room) Append(msg models.Message) int {
	r.mux.Lock()
	defer r.mux.Unlock()

	r.messages = append(r.messages, msg)
	return len(r.messages) - 1
}

// AppendFrom appends msg only if sender has joined the room.
// Membership check and append happen under one lock.
func (r *Room) AppendFrom(sender string, msg models.Message) (int, bool) {
	r.mux.Lock()
	defer r.mux.Unlock()

	if _, ok := r.memberIx[sender]; !ok {
		return 0, false
	}
	r.messages = append(r.messages, msg)
	return len(r.messages) - 1, true
}

// Delta returns the messages in [since, Len()).
// The returned slice is a copy; since == Len() yields an empty slice.
func (r *Room) Delta(since uint64) ([]models.Message, error) {
	r.mux.RLock()
	defer r.mux.RUnlock()

	return r.delta(since)
}

// DeltaFor is Delta guarded by a membership check on member.
func (r *Room) DeltaFor(member string, since uint64) ([]models.Message, bool, error) {
	r.mux.RLock()
	defer r.mux.RUnlock()

	if _, ok := r.memberIx[member]; !ok {
		return nil, false, nil
	}
	msgs, err := r.delta(since)
	return msgs, true, err
}

func (r *Room) delta(since uint64) ([]models.Message, error) {
	n := uint64(len(r.messages))
	if since > n {
		return nil, fmt.Errorf("%w: cursor %d, log length %d", ErrCursorAhead, since, n)
	}

	result := make([]models.Message, n-since)
	copy(result, r.messages[since:])
	return result, nil
}

// Messages returns a copy of the whole log.
func (r *Room) Messages() []models.Message {
	msgs, _ := r.Delta(0)
	return msgs
}

func (r *Room) Len() int {
	r.mux.RLock()
	defer r.mux.RUnlock()

	return len(r.messages)
}

// Join records c as a member and returns the full log in one step, so a new
// participant starts from a consistent snapshot. The bool reports whether c
// was newly added.
func (r *Room) Join(c *models.Client) ([]models.Message, bool) {
	r.mux.Lock()
	defer r.mux.Unlock()

	added := r.addClient(c)
	msgs, _ := r.delta(0)
	return msgs, added
}

// AddClient records c as a member. Returns true if newly added.
func (r *Room) AddClient(c *models.Client) bool {
	r.mux.Lock()
	defer r.mux.Unlock()

	return r.addClient(c)
}

func (r *Room) addClient(c *models.Client) bool {
	name := c.Username()
	if _, ok := r.memberIx[name]; ok {
		return false
	}
	r.memberIx[name] = len(r.members)
	r.members = append(r.members, c)
	return true
}

func (r *Room) HasClient(username string) bool {
	r.mux.RLock()
	defer r.mux.RUnlock()

	_, ok := r.memberIx[username]
	return ok
}

// Clients returns every client that has ever joined, in join order.
func (r *Room) Clients() []*models.Client {
	r.mux.RLock()
	defer r.mux.RUnlock()

	result := make([]*models.Client, len(r.members))
	copy(result, r.members)
	return result
}

// Info builds the listing entry for the room. onlineUsers comes from the
// presence tracker.
func (r *Room) Info(onlineUsers []string) models.RoomInfo {
	if onlineUsers == nil {
		onlineUsers = []string{}
	}
	return models.RoomInfo{
		Name:           r.Name,
		Owner:          r.Owner,
		OnlineUsers:    onlineUsers,
		Password:       r.Password,
		HistoryVisible: r.HistoryVisible,
		CreatedTime:    r.CreatedTime,
	}
}

// Snapshot is a point-in-time copy of a room used for persistence.
type Snapshot struct {
	Config
	Messages []models.Message
	Clients  []*models.Client
}

func (r *Room) Snapshot() Snapshot {
	r.mux.RLock()
	defer r.mux.RUnlock()

	s := Snapshot{
		Config: Config{
			Name:           r.Name,
			CreatedTime:    r.CreatedTime,
			HistoryVisible: r.HistoryVisible,
			Password:       r.Password,
			Owner:          r.Owner,
		},
		Messages: make([]models.Message, len(r.messages)),
		Clients:  make([]*models.Client, len(r.members)),
	}
	copy(s.Messages, r.messages)
	copy(s.Clients, r.members)
	return s
}

// Restore rebuilds a room from a snapshot.
func Restore(s Snapshot) *Room {
	r := &Room{
		Name:           s.Name,
		CreatedTime:    s.CreatedTime,
		HistoryVisible: s.HistoryVisible,
		Password:       s.Password,
		Owner:          s.Owner,
		messages:       append([]models.Message(nil), s.Messages...),
		memberIx:       make(map[string]int),
	}
	for _, c := range s.Clients {
		r.addClient(c)
	}
	return r
}
