package server

import (
	"context"
	"errors"

	"roomchat/internal/auth"
	"roomchat/internal/chat"
	"roomchat/internal/content"
	"roomchat/internal/models"
)

func (s *Server) requireClient(method string, c *models.Client) (string, error) {
	if c == nil {
		s.log.Debug().Str("method", method).Msg("client is none")
		return "", status(CodeInvalidArgument, "client is none")
	}
	name := c.Username()
	if name == "" {
		s.log.Debug().Str("method", method).Msg("username is empty")
		return "", status(CodeInvalidArgument, "username is empty")
	}
	return name, nil
}

func (s *Server) requireRoomName(method, roomname string) error {
	if roomname == "" {
		s.log.Debug().Str("method", method).Msg("roomname is empty")
		return status(CodeInvalidArgument, "roomname is empty")
	}
	return nil
}

func (s *Server) lookupRoom(method, roomname string) (*chat.Room, error) {
	room := s.FindRoom(roomname)
	if room == nil {
		s.log.Debug().Str("method", method).Str("room", roomname).Msg("room not found")
		return nil, status(CodeNotFound, "room %s does not exist", roomname)
	}
	return room, nil
}

// Signup registers a new user or checks the password of an existing one.
// A wrong password is reported in the response code, not as an error.
func (s *Server) Signup(ctx context.Context, req *models.SignupRequest) (*models.ServerResponse, error) {
	username, err := s.requireClient("Signup", req.Client)
	if err != nil {
		return nil, err
	}
	if err := content.ValidateName(username); err != nil {
		return nil, status(CodeInvalidArgument, "invalid username: %v", err)
	}

	outcome, err := s.users.Signup(*req.Client.User, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrEmptyUsername) {
			return nil, status(CodeInvalidArgument, "username is empty")
		}
		return nil, status(CodeInternal, "signup: %v", err)
	}

	resp := &models.ServerResponse{}
	switch outcome {
	case auth.Created:
		s.log.Info().Str("user", username).Msg("user created")
		s.flushAfter(ctx, "Signup")
		resp.Code = models.ResponseCreated
	case auth.Authenticated:
		resp.Code = models.ResponseAuthenticated
	case auth.PasswordWrong:
		s.log.Debug().Str("user", username).Msg("wrong password")
		resp.Code = models.ResponsePasswordWrong
		resp.ExtraInfo = "password wrong"
	}
	return resp, nil
}

// CreateRoom creates a room owned by the caller. Concurrent creations of the
// same name have exactly one winner.
func (s *Server) CreateRoom(ctx context.Context, req *models.CreateRoomRequest) (*models.ServerResponse, error) {
	username, err := s.requireClient("CreateRoom", req.Client)
	if err != nil {
		return nil, err
	}
	if err := s.requireRoomName("CreateRoom", req.RoomName); err != nil {
		return nil, err
	}
	if err := content.ValidateName(req.RoomName); err != nil {
		return nil, status(CodeInvalidArgument, "invalid roomname: %v", err)
	}

	_, created := s.createRoom(chat.Config{
		Name:           req.RoomName,
		CreatedTime:    s.now().UnixMilli(),
		HistoryVisible: req.HistoryVisible,
		Password:       req.Password,
		Owner:          req.Client,
	})
	if !created {
		s.log.Debug().Str("room", req.RoomName).Msg("create existed room")
		return nil, status(CodeAlreadyExists, "room %s already exists", req.RoomName)
	}
	s.presence.AddRoom(req.RoomName)

	s.log.Info().Str("room", req.RoomName).Str("owner", username).Msg("room created")
	s.flushAfter(ctx, "CreateRoom")
	return &models.ServerResponse{Code: models.ResponseOK}, nil
}

// Join adds the caller to the room, marks it online and returns the full log.
func (s *Server) Join(ctx context.Context, req *models.JoinRequest) (*models.ServerResponse, error) {
	username, err := s.requireClient("Join", req.Client)
	if err != nil {
		return nil, err
	}
	if err := s.requireRoomName("Join", req.RoomName); err != nil {
		return nil, err
	}
	room, err := s.lookupRoom("Join", req.RoomName)
	if err != nil {
		return nil, err
	}

	messages, added := room.Join(req.Client)
	s.presence.MarkOnline(req.RoomName, username)

	if added {
		s.log.Info().Str("room", req.RoomName).Str("user", username).Msg("client joined")
		s.flushAfter(ctx, "Join")
	}
	return &models.ServerResponse{Code: models.ResponseOK, Messages: messages}, nil
}

// Heartbeat refreshes the caller's liveness and returns the messages from
// msgnum to the end of the log. Repeating a call with the same msgnum
// returns the same messages plus anything appended since.
func (s *Server) Heartbeat(ctx context.Context, req *models.HeartbeatRequest) (*models.ServerResponse, error) {
	username, err := s.requireClient("Heartbeat", req.Client)
	if err != nil {
		return nil, err
	}
	if err := s.requireRoomName("Heartbeat", req.RoomName); err != nil {
		return nil, err
	}
	room, err := s.lookupRoom("Heartbeat", req.RoomName)
	if err != nil {
		return nil, err
	}

	messages, member, err := room.DeltaFor(username, req.MsgNum)
	if !member {
		s.log.Warn().Str("room", req.RoomName).Str("user", username).Msg("heartbeat from client not in room")
		return nil, status(CodeFailedPrecondition, "client %s has not joined room %s", username, req.RoomName)
	}
	s.presence.Touch(username)
	if err != nil {
		s.log.Debug().Err(err).Str("room", req.RoomName).Str("user", username).Msg("bad cursor")
		return nil, status(CodeInvalidArgument, "msgnum: %v", err)
	}

	if len(messages) > 0 {
		s.log.Debug().Str("room", req.RoomName).Str("user", username).Int("count", len(messages)).Msg("delivering messages")
	}
	return &models.ServerResponse{Code: models.ResponseOK, Messages: messages}, nil
}

// Send appends a message to the room log. The sender recorded on the message
// is always the calling client.
func (s *Server) Send(ctx context.Context, req *models.SendRequest) (*models.ServerResponse, error) {
	username, err := s.requireClient("Send", req.Client)
	if err != nil {
		return nil, err
	}
	if req.Message == nil {
		s.log.Debug().Str("method", "Send").Msg("message is none")
		return nil, status(CodeInvalidArgument, "message is none")
	}
	if err := s.requireRoomName("Send", req.RoomName); err != nil {
		return nil, err
	}
	room, err := s.lookupRoom("Send", req.RoomName)
	if err != nil {
		return nil, err
	}

	msg := *req.Message
	msg.Client = req.Client
	if msg.Time == 0 {
		msg.Time = s.now().UnixMilli()
	}
	if msg.Type == "" {
		msg.Type = models.MessageTypeText
	}

	idx, ok := room.AppendFrom(username, msg)
	if !ok {
		s.log.Debug().Str("room", req.RoomName).Str("user", username).Msg("client not in room")
		return nil, status(CodeFailedPrecondition, "client %s does not exist in room %s", username, req.RoomName)
	}

	s.log.Debug().Str("room", req.RoomName).Str("user", username).Int("index", idx).Msg("message added")
	s.flushAfter(ctx, "Send")
	return &models.ServerResponse{Code: models.ResponseOK}, nil
}

// ExitRoom removes the caller from the room's online set. Unknown rooms and
// absent users are ignored.
func (s *Server) ExitRoom(ctx context.Context, req *models.ExitRoomRequest) (*models.ServerResponse, error) {
	username, err := s.requireClient("ExitRoom", req.Client)
	if err != nil {
		return nil, err
	}
	if err := s.requireRoomName("ExitRoom", req.RoomName); err != nil {
		return nil, err
	}

	if s.presence.RemoveOnline(req.RoomName, username) {
		s.log.Info().Str("room", req.RoomName).Str("user", username).Msg("client exited")
	}
	return &models.ServerResponse{Code: models.ResponseOK}, nil
}

// GetRooms lists every room with its owner, online users and password.
func (s *Server) GetRooms(ctx context.Context, req *models.GetRoomsRequest) (*models.ServerResponse, error) {
	if _, err := s.requireClient("GetRooms", req.Client); err != nil {
		return nil, err
	}

	rooms := s.roomList()
	resp := &models.ServerResponse{
		Code:      models.ResponseOK,
		RoomInfos: make([]models.RoomInfo, 0, len(rooms)),
	}
	for _, r := range rooms {
		resp.RoomInfos = append(resp.RoomInfos, r.Info(s.presence.ActiveUsers(r.Name)))
	}
	return resp, nil
}

// GetUsers lists every registered user.
func (s *Server) GetUsers(ctx context.Context, req *models.GetUsersRequest) (*models.ServerResponse, error) {
	if _, err := s.requireClient("GetUsers", req.Client); err != nil {
		return nil, err
	}

	users := s.users.Users()
	resp := &models.ServerResponse{
		Code:  models.ResponseOK,
		Users: make([]models.UserInfo, 0, len(users)),
	}
	for _, u := range users {
		resp.Users = append(resp.Users, models.UserInfo{Name: u.Username})
	}
	return resp, nil
}
