package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"roomchat/internal/auth"
	"roomchat/internal/models"
	"roomchat/internal/presence"
	"roomchat/internal/storage"
)

type failingStore struct {
	flushes int
	mu      sync.Mutex
}

func (f *failingStore) LoadAll(context.Context) (storage.Snapshot, error) {
	return storage.Snapshot{}, nil
}

func (f *failingStore) FlushAll(context.Context, storage.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return errors.New("disk full")
}

func (f *failingStore) Close() error { return nil }

func newTestServer(t *testing.T, store storage.Store) *Server {
	t.Helper()
	return New(store, presence.New(), auth.NewService())
}

func newFileServer(t *testing.T, dir string) *Server {
	t.Helper()
	store, err := storage.NewFileStorage(dir)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	s := newTestServer(t, store)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return s
}

func mustCreate(t *testing.T, s *Server, owner, room string) {
	t.Helper()
	_, err := s.CreateRoom(context.Background(), &models.CreateRoomRequest{
		Client:         models.NewClient(owner),
		RoomName:       room,
		HistoryVisible: true,
	})
	if err != nil {
		t.Fatalf("CreateRoom(%s) failed: %v", room, err)
	}
}

func mustJoin(t *testing.T, s *Server, user, room string) []models.Message {
	t.Helper()
	resp, err := s.Join(context.Background(), &models.JoinRequest{Client: models.NewClient(user), RoomName: room})
	if err != nil {
		t.Fatalf("Join(%s, %s) failed: %v", user, room, err)
	}
	return resp.Messages
}

func mustSend(t *testing.T, s *Server, user, room, text string) {
	t.Helper()
	c := models.NewClient(user)
	_, err := s.Send(context.Background(), &models.SendRequest{
		Client:   c,
		RoomName: room,
		Message:  models.NewTextMessage(c, text, 0),
	})
	if err != nil {
		t.Fatalf("Send(%s, %s) failed: %v", user, room, err)
	}
}

func heartbeat(s *Server, user, room string, msgnum uint64) (*models.ServerResponse, error) {
	return s.Heartbeat(context.Background(), &models.HeartbeatRequest{
		Client:   models.NewClient(user),
		RoomName: room,
		MsgNum:   msgnum,
	})
}

func texts(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Bytes)
	}
	return out
}

func TestValidation(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()
	mustCreate(t, s, "alice", "lobby")

	tests := []struct {
		name string
		call func() error
		code Code
	}{
		{"Signup/NoClient", func() error { _, err := s.Signup(ctx, &models.SignupRequest{Password: "x"}); return err }, CodeInvalidArgument},
		{"Signup/BadName", func() error {
			_, err := s.Signup(ctx, &models.SignupRequest{Client: models.NewClient("a/b"), Password: "x"})
			return err
		}, CodeInvalidArgument},
		{"Join/NoClient", func() error { _, err := s.Join(ctx, &models.JoinRequest{RoomName: "lobby"}); return err }, CodeInvalidArgument},
		{"Join/EmptyRoom", func() error { _, err := s.Join(ctx, &models.JoinRequest{Client: models.NewClient("bob")}); return err }, CodeInvalidArgument},
		{"Join/UnknownRoom", func() error {
			_, err := s.Join(ctx, &models.JoinRequest{Client: models.NewClient("bob"), RoomName: "nope"})
			return err
		}, CodeNotFound},
		{"Heartbeat/NoClient", func() error { _, err := s.Heartbeat(ctx, &models.HeartbeatRequest{RoomName: "lobby"}); return err }, CodeInvalidArgument},
		{"Heartbeat/UnknownRoom", func() error { _, err := heartbeat(s, "bob", "nope", 0); return err }, CodeNotFound},
		{"Heartbeat/NotMember", func() error { _, err := heartbeat(s, "bob", "lobby", 0); return err }, CodeFailedPrecondition},
		{"Send/NoMessage", func() error {
			_, err := s.Send(ctx, &models.SendRequest{Client: models.NewClient("alice"), RoomName: "lobby"})
			return err
		}, CodeInvalidArgument},
		{"Send/NotMember", func() error {
			c := models.NewClient("bob")
			_, err := s.Send(ctx, &models.SendRequest{Client: c, RoomName: "lobby", Message: models.NewTextMessage(c, "hi", 0)})
			return err
		}, CodeFailedPrecondition},
		{"Send/UnknownRoom", func() error {
			c := models.NewClient("alice")
			_, err := s.Send(ctx, &models.SendRequest{Client: c, RoomName: "nope", Message: models.NewTextMessage(c, "hi", 0)})
			return err
		}, CodeNotFound},
		{"CreateRoom/EmptyName", func() error {
			_, err := s.CreateRoom(ctx, &models.CreateRoomRequest{Client: models.NewClient("alice")})
			return err
		}, CodeInvalidArgument},
		{"CreateRoom/Exists", func() error {
			_, err := s.CreateRoom(ctx, &models.CreateRoomRequest{Client: models.NewClient("bob"), RoomName: "lobby"})
			return err
		}, CodeAlreadyExists},
		{"ExitRoom/NoClient", func() error { _, err := s.ExitRoom(ctx, &models.ExitRoomRequest{RoomName: "lobby"}); return err }, CodeInvalidArgument},
		{"GetRooms/NoClient", func() error { _, err := s.GetRooms(ctx, &models.GetRoomsRequest{}); return err }, CodeInvalidArgument},
		{"GetUsers/NoClient", func() error { _, err := s.GetUsers(ctx, &models.GetUsersRequest{}); return err }, CodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if err == nil {
				t.Fatal("expected error")
			}
			if got := CodeOf(err); got != tt.code {
				t.Errorf("expected code %s, got %s (%v)", tt.code, got, err)
			}
		})
	}

	// A failed Send must not touch the log
	if room := s.FindRoom("lobby"); room.Len() != 0 {
		t.Errorf("expected empty log after rejected sends, got %d", room.Len())
	}
}

func TestSignup(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()

	signup := func(pw string) models.ResponseCode {
		resp, err := s.Signup(ctx, &models.SignupRequest{Client: models.NewClient("a"), Password: pw})
		if err != nil {
			t.Fatalf("Signup failed: %v", err)
		}
		return resp.Code
	}

	if code := signup("x"); code != models.ResponseCreated {
		t.Errorf("expected created, got %s", code)
	}
	if code := signup("y"); code != models.ResponsePasswordWrong {
		t.Errorf("expected password_wrong, got %s", code)
	}
	if code := signup("x"); code != models.ResponseAuthenticated {
		t.Errorf("expected authenticated, got %s", code)
	}
}

func TestCreateRoom_ConcurrentSameName(t *testing.T) {
	s := newTestServer(t, nil)

	const n = 50
	errs := make([]error, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = s.CreateRoom(context.Background(), &models.CreateRoomRequest{
				Client:   models.NewClient(fmt.Sprintf("user%d", i)),
				RoomName: "race",
			})
		}(i)
	}
	close(start)
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyExists):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly one successful create, got %d", wins)
	}

	resp, err := s.GetRooms(context.Background(), &models.GetRoomsRequest{Client: models.NewClient("x")})
	if err != nil {
		t.Fatalf("GetRooms failed: %v", err)
	}
	if len(resp.RoomInfos) != 1 || resp.RoomInfos[0].Name != "race" {
		t.Errorf("expected exactly one room named race, got %+v", resp.RoomInfos)
	}
}

func TestHeartbeat_Delta(t *testing.T) {
	s := newTestServer(t, nil)
	mustCreate(t, s, "alice", "lobby")

	const n = 6
	for i := 0; i < n; i++ {
		mustSend(t, s, "alice", "lobby", fmt.Sprintf("m%d", i))
	}

	for k := uint64(0); k <= n; k++ {
		resp, err := heartbeat(s, "alice", "lobby", k)
		if err != nil {
			t.Fatalf("Heartbeat(%d) failed: %v", k, err)
		}
		if len(resp.Messages) != int(n-k) {
			t.Fatalf("Heartbeat(%d): expected %d messages, got %d", k, n-k, len(resp.Messages))
		}
		for i, m := range resp.Messages {
			if want := fmt.Sprintf("m%d", int(k)+i); string(m.Bytes) != want {
				t.Errorf("Heartbeat(%d)[%d]: expected %s, got %s", k, i, want, m.Bytes)
			}
		}

		// Retrying with the same cursor returns the same slice
		again, err := heartbeat(s, "alice", "lobby", k)
		if err != nil {
			t.Fatalf("retry Heartbeat(%d) failed: %v", k, err)
		}
		if fmt.Sprint(texts(again.Messages)) != fmt.Sprint(texts(resp.Messages)) {
			t.Errorf("Heartbeat(%d) not idempotent: %v vs %v", k, texts(resp.Messages), texts(again.Messages))
		}
	}

	if _, err := heartbeat(s, "alice", "lobby", n+1); CodeOf(err) != CodeInvalidArgument {
		t.Errorf("expected invalid_argument for cursor past end, got %v", err)
	}
}

func TestEndToEnd(t *testing.T) {
	s := newTestServer(t, nil)

	mustCreate(t, s, "alice", "lobby")
	mustSend(t, s, "alice", "lobby", "hi")

	log := mustJoin(t, s, "bob", "lobby")
	if len(log) != 1 || string(log[0].Bytes) != "hi" || log[0].Sender() != "alice" {
		t.Fatalf("unexpected join log: %+v", log)
	}

	resp, err := heartbeat(s, "bob", "lobby", 0)
	if err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if len(resp.Messages) != 1 || string(resp.Messages[0].Bytes) != "hi" || resp.Messages[0].Sender() != "alice" {
		t.Fatalf("unexpected heartbeat delta: %+v", resp.Messages)
	}

	resp, err = heartbeat(s, "bob", "lobby", 1)
	if err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if len(resp.Messages) != 0 {
		t.Errorf("expected empty delta, got %+v", resp.Messages)
	}
}

func TestSend_StampsSender(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)
	s := New(nil, presence.New(), auth.NewService(), WithClock(func() time.Time { return now }))
	mustCreate(t, s, "alice", "lobby")

	// Message claims to come from mallory; the request identity wins.
	_, err := s.Send(context.Background(), &models.SendRequest{
		Client:   models.NewClient("alice"),
		RoomName: "lobby",
		Message:  &models.Message{Client: models.NewClient("mallory"), Bytes: []byte("hi")},
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	msgs := s.FindRoom("lobby").Messages()
	if msgs[0].Sender() != "alice" {
		t.Errorf("expected sender alice, got %s", msgs[0].Sender())
	}
	if msgs[0].Time != now.UnixMilli() {
		t.Errorf("expected server time, got %d", msgs[0].Time)
	}
	if msgs[0].Type != models.MessageTypeText {
		t.Errorf("expected text type, got %s", msgs[0].Type)
	}
}

func TestPresence(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()
	pw := "hunter2"
	_, err := s.CreateRoom(ctx, &models.CreateRoomRequest{
		Client:   models.NewClient("alice"),
		RoomName: "lobby",
		Password: &pw,
	})
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	mustCreate(t, s, "alice", "empty")

	mustJoin(t, s, "bob", "lobby")
	mustJoin(t, s, "carol", "lobby")

	rooms := func() map[string]models.RoomInfo {
		resp, err := s.GetRooms(ctx, &models.GetRoomsRequest{Client: models.NewClient("alice")})
		if err != nil {
			t.Fatalf("GetRooms failed: %v", err)
		}
		m := make(map[string]models.RoomInfo)
		for _, r := range resp.RoomInfos {
			m[r.Name] = r
		}
		return m
	}

	info := rooms()
	if got := info["lobby"].OnlineUsers; fmt.Sprint(got) != "[bob carol]" {
		t.Errorf("unexpected online users: %v", got)
	}
	if info["lobby"].Password == nil || *info["lobby"].Password != "hunter2" {
		t.Errorf("expected room password in listing, got %v", info["lobby"].Password)
	}
	if info["lobby"].Owner.Username() != "alice" {
		t.Errorf("expected owner alice, got %s", info["lobby"].Owner.Username())
	}
	if len(info["empty"].OnlineUsers) != 0 {
		t.Errorf("expected no online users, got %v", info["empty"].OnlineUsers)
	}

	if _, err := s.ExitRoom(ctx, &models.ExitRoomRequest{Client: models.NewClient("bob"), RoomName: "lobby"}); err != nil {
		t.Fatalf("ExitRoom failed: %v", err)
	}
	// Exiting twice, or from an unknown room, is a no-op
	if _, err := s.ExitRoom(ctx, &models.ExitRoomRequest{Client: models.NewClient("bob"), RoomName: "lobby"}); err != nil {
		t.Fatalf("second ExitRoom failed: %v", err)
	}
	if _, err := s.ExitRoom(ctx, &models.ExitRoomRequest{Client: models.NewClient("bob"), RoomName: "ghost"}); err != nil {
		t.Fatalf("ExitRoom on unknown room failed: %v", err)
	}

	if got := rooms()["lobby"].OnlineUsers; fmt.Sprint(got) != "[carol]" {
		t.Errorf("unexpected online users after exit: %v", got)
	}

	// Exited users are still members and may keep polling
	if _, err := heartbeat(s, "bob", "lobby", 0); err != nil {
		t.Errorf("heartbeat after exit failed: %v", err)
	}
}

func TestGetUsers(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()
	for _, name := range []string{"bob", "alice"} {
		if _, err := s.Signup(ctx, &models.SignupRequest{Client: models.NewClient(name), Password: "pw"}); err != nil {
			t.Fatalf("Signup failed: %v", err)
		}
	}

	resp, err := s.GetUsers(ctx, &models.GetUsersRequest{Client: models.NewClient("alice")})
	if err != nil {
		t.Fatalf("GetUsers failed: %v", err)
	}
	if len(resp.Users) != 2 || resp.Users[0].Name != "alice" || resp.Users[1].Name != "bob" {
		t.Errorf("unexpected users: %+v", resp.Users)
	}
}

func TestFlushFailureKeepsState(t *testing.T) {
	store := &failingStore{}
	s := newTestServer(t, store)

	mustCreate(t, s, "alice", "lobby")
	mustSend(t, s, "alice", "lobby", "still here")

	if store.flushes != 2 {
		t.Errorf("expected a flush attempt per mutation, got %d", store.flushes)
	}
	if s.FindRoom("lobby").Len() != 1 {
		t.Error("failed flush rolled back the message")
	}
	if err := s.Flush(context.Background()); err == nil {
		t.Error("expected explicit Flush to report the failure")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	pw := "roompw"

	s := newFileServer(t, dir)
	for _, u := range []struct{ name, pw string }{{"alice", "x"}, {"bob", "y"}} {
		if _, err := s.Signup(ctx, &models.SignupRequest{Client: models.NewClient(u.name), Password: u.pw}); err != nil {
			t.Fatalf("Signup failed: %v", err)
		}
	}
	if _, err := s.CreateRoom(ctx, &models.CreateRoomRequest{Client: models.NewClient("alice"), RoomName: "lobby", Password: &pw, HistoryVisible: true}); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	mustJoin(t, s, "bob", "lobby")
	mustSend(t, s, "alice", "lobby", "one")
	mustSend(t, s, "bob", "lobby", "two")
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	restarted := newFileServer(t, dir)

	room := restarted.FindRoom("lobby")
	if room == nil {
		t.Fatal("room lobby not restored")
	}
	if got := texts(room.Messages()); fmt.Sprint(got) != "[one two]" {
		t.Errorf("unexpected messages after restart: %v", got)
	}
	if room.Password == nil || *room.Password != "roompw" || !room.HistoryVisible {
		t.Errorf("room attributes not restored: %+v", room)
	}

	// Passwords survive: the old one authenticates, a new one is rejected
	resp, err := restarted.Signup(ctx, &models.SignupRequest{Client: models.NewClient("alice"), Password: "x"})
	if err != nil || resp.Code != models.ResponseAuthenticated {
		t.Errorf("expected authenticated after restart, got %v %v", resp, err)
	}
	resp, err = restarted.Signup(ctx, &models.SignupRequest{Client: models.NewClient("bob"), Password: "x"})
	if err != nil || resp.Code != models.ResponsePasswordWrong {
		t.Errorf("expected password_wrong after restart, got %v %v", resp, err)
	}

	// Membership survives, so bob can poll without rejoining
	hb, err := heartbeat(restarted, "bob", "lobby", 1)
	if err != nil {
		t.Fatalf("Heartbeat after restart failed: %v", err)
	}
	if got := texts(hb.Messages); fmt.Sprint(got) != "[two]" {
		t.Errorf("unexpected delta after restart: %v", got)
	}

	// Recreating a restored room still conflicts
	if _, err := restarted.CreateRoom(ctx, &models.CreateRoomRequest{Client: models.NewClient("bob"), RoomName: "lobby"}); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected already_exists, got %v", err)
	}
}

func TestConcurrentTrafficAcrossRooms(t *testing.T) {
	s := newFileServer(t, t.TempDir())

	const rooms, users, msgs = 4, 3, 10
	for r := 0; r < rooms; r++ {
		mustCreate(t, s, "owner", fmt.Sprintf("room%d", r))
		for u := 0; u < users; u++ {
			mustJoin(t, s, fmt.Sprintf("user%d", u), fmt.Sprintf("room%d", r))
		}
	}

	var wg sync.WaitGroup
	for r := 0; r < rooms; r++ {
		for u := 0; u < users; u++ {
			wg.Add(1)
			go func(room, user string) {
				defer wg.Done()
				var cursor uint64
				for i := 0; i < msgs; i++ {
					mustSend(t, s, user, room, fmt.Sprintf("%s-%d", user, i))
					resp, err := heartbeat(s, user, room, cursor)
					if err != nil {
						t.Errorf("Heartbeat failed: %v", err)
						return
					}
					cursor += uint64(len(resp.Messages))
				}
			}(fmt.Sprintf("room%d", r), fmt.Sprintf("user%d", u))
		}
	}
	wg.Wait()

	st := s.Stats()
	if st.Rooms != rooms || st.Messages != rooms*users*msgs {
		t.Errorf("unexpected stats: %+v", st)
	}
}
