package storage

import (
	"encoding"

	"github.com/vmihailenco/msgpack/v5"

	"roomchat/internal/auth"
	"roomchat/internal/chat"
	"roomchat/internal/models"
)

const (
	roomPrefix = "room_"
	userPrefix = "user_"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBClient struct {
	Name       string `msgpack:"name"`
	Gender     int32  `msgpack:"gender"`
	DeviceName string `msgpack:"deviceName,omitempty"`
	DeviceOS   string `msgpack:"deviceOs,omitempty"`
}

type DBMessage struct {
	Client DBClient `msgpack:"client"`
	Bytes  []byte   `msgpack:"bytes"`
	Time   int64    `msgpack:"time"`
	Type   string   `msgpack:"type"`
}

type DBRoom struct {
	Name           string      `msgpack:"name"`
	CreatedTime    int64       `msgpack:"createdTime"`
	HistoryVisible bool        `msgpack:"historyVisible"`
	Password       *string     `msgpack:"password"`
	Owner          *DBClient   `msgpack:"owner"`
	Messages       []DBMessage `msgpack:"messages"`
	Clients        []DBClient  `msgpack:"clients"`
}

func (r *DBRoom) Key() []byte {
	return []byte(roomPrefix + r.Name)
}

func (r *DBRoom) MarshalBinary() (data []byte, err error) {
	type alias DBRoom
	return msgpack.Marshal((*alias)(r))
}

func (r *DBRoom) UnmarshalBinary(data []byte) error {
	type alias DBRoom
	return msgpack.Unmarshal(data, (*alias)(r))
}

type DBUser struct {
	UserName string `msgpack:"userName"`
	Password string `msgpack:"password"`
	Gender   int32  `msgpack:"gender"`
}

func (u *DBUser) Key() []byte {
	return []byte(userPrefix + u.UserName)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

func toDBClient(c *models.Client) DBClient {
	dbc := DBClient{Name: c.Username()}
	if c != nil && c.User != nil {
		dbc.Gender = c.User.Gender
	}
	if c != nil && c.Device != nil {
		dbc.DeviceName = c.Device.Name
		dbc.DeviceOS = c.Device.OS
	}
	return dbc
}

func (c DBClient) toModel() *models.Client {
	return &models.Client{
		User:   &models.User{Name: c.Name, Gender: c.Gender},
		Device: &models.Device{Name: c.DeviceName, OS: c.DeviceOS},
	}
}

func roomToDB(s chat.Snapshot) *DBRoom {
	dbRoom := &DBRoom{
		Name:           s.Name,
		CreatedTime:    s.CreatedTime,
		HistoryVisible: s.HistoryVisible,
		Password:       s.Password,
		Messages:       make([]DBMessage, len(s.Messages)),
		Clients:        make([]DBClient, len(s.Clients)),
	}
	if s.Owner != nil {
		owner := toDBClient(s.Owner)
		dbRoom.Owner = &owner
	}
	for i, m := range s.Messages {
		dbRoom.Messages[i] = DBMessage{
			Client: toDBClient(m.Client),
			Bytes:  m.Bytes,
			Time:   m.Time,
			Type:   string(m.Type),
		}
	}
	for i, c := range s.Clients {
		dbRoom.Clients[i] = toDBClient(c)
	}
	return dbRoom
}

func (r *DBRoom) toSnapshot() chat.Snapshot {
	s := chat.Snapshot{
		Config: chat.Config{
			Name:           r.Name,
			CreatedTime:    r.CreatedTime,
			HistoryVisible: r.HistoryVisible,
			Password:       r.Password,
		},
		Messages: make([]models.Message, len(r.Messages)),
		Clients:  make([]*models.Client, len(r.Clients)),
	}
	if r.Owner != nil {
		s.Owner = r.Owner.toModel()
	}
	for i, m := range r.Messages {
		s.Messages[i] = models.Message{
			Client: m.Client.toModel(),
			Bytes:  m.Bytes,
			Time:   m.Time,
			Type:   models.MessageType(m.Type),
		}
	}
	for i, c := range r.Clients {
		s.Clients[i] = c.toModel()
	}
	return s
}

func userToDB(u auth.UserCredentials) *DBUser {
	return &DBUser{
		UserName: u.Username,
		Password: u.Password,
		Gender:   u.Gender,
	}
}

func (u *DBUser) toCredentials() auth.UserCredentials {
	return auth.UserCredentials{
		Username: u.UserName,
		Password: u.Password,
		Gender:   u.Gender,
	}
}
