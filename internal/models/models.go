package models

import "errors"

var (
	ErrNotFound = errors.New("not found")
)

// Device describes the client machine. It is informational only.
type Device struct {
	Name string `json:"name,omitempty"`
	OS   string `json:"os,omitempty"`
}

// User is the identity part of a request.
type User struct {
	Name string `json:"name"`
	// Gender is carried for wire compatibility and never read.
	Gender int32 `json:"gender,omitempty"`
}

// Client is the request identity attached to every call. Two clients are
// the same participant when their usernames match.
type Client struct {
	User   *User   `json:"user,omitempty"`
	Device *Device `json:"device,omitempty"`
}

// Username returns the client's username or "" when the user is missing.
func (c *Client) Username() string {
	if c == nil || c.User == nil {
		return ""
	}
	return c.User.Name
}

type MessageType string

const (
	MessageTypeText MessageType = "text"
)

// Message is a single chat entry. It is never modified after it is appended
// to a room log.
type Message struct {
	Client *Client     `json:"client,omitempty"`
	Bytes  []byte      `json:"bytes"`
	Time   int64       `json:"time"` // Unix milliseconds
	Type   MessageType `json:"type"`
}

// Sender returns the username of the message author.
func (m Message) Sender() string {
	return m.Client.Username()
}

// RoomInfo is the GetRooms view of a room.
type RoomInfo struct {
	Name           string   `json:"name"`
	Owner          *Client  `json:"owner,omitempty"`
	OnlineUsers    []string `json:"onlineUsers"`
	Password       *string  `json:"password,omitempty"`
	HistoryVisible bool     `json:"historyVisible"`
	CreatedTime    int64    `json:"createdTime"`
}

// UserInfo is the GetUsers view of a user.
type UserInfo struct {
	Name string `json:"name"`
}

type SignupRequest struct {
	Client   *Client `json:"client,omitempty"`
	Password string  `json:"password"`
}

type JoinRequest struct {
	Client   *Client `json:"client,omitempty"`
	RoomName string  `json:"roomname"`
	Password *string `json:"password,omitempty"`
}

type HeartbeatRequest struct {
	Client   *Client `json:"client,omitempty"`
	RoomName string  `json:"roomname"`
	MsgNum   uint64  `json:"msgnum"`
}

type SendRequest struct {
	Client   *Client  `json:"client,omitempty"`
	RoomName string   `json:"roomname"`
	Message  *Message `json:"message,omitempty"`
}

type CreateRoomRequest struct {
	Client         *Client `json:"client,omitempty"`
	RoomName       string  `json:"roomname"`
	Password       *string `json:"password,omitempty"`
	HistoryVisible bool    `json:"historyVisible"`
}

type ExitRoomRequest struct {
	Client   *Client `json:"client,omitempty"`
	RoomName string  `json:"roomname"`
}

type GetRoomsRequest struct {
	Client *Client `json:"client,omitempty"`
}

type GetUsersRequest struct {
	Client *Client `json:"client,omitempty"`
}

// ResponseCode is the soft status of a call that otherwise succeeded.
type ResponseCode string

const (
	ResponseOK            ResponseCode = "ok"
	ResponseCreated       ResponseCode = "created"
	ResponseAuthenticated ResponseCode = "authenticated"
	ResponsePasswordWrong ResponseCode = "password_wrong"
)

// ServerResponse is the single response shape shared by every method.
type ServerResponse struct {
	Code      ResponseCode `json:"code"`
	ExtraInfo string       `json:"extraInfo,omitempty"`
	Messages  []Message    `json:"messages,omitempty"`
	RoomInfos []RoomInfo   `json:"roomInfos,omitempty"`
	Users     []UserInfo   `json:"users,omitempty"`
}

// NewClient builds a request identity for the given username.
func NewClient(username string) *Client {
	return &Client{
		User:   &User{Name: username},
		Device: &Device{},
	}
}

// NewTextMessage builds a text message sent by c at the given time.
func NewTextMessage(c *Client, text string, timeMillis int64) *Message {
	return &Message{
		Client: c,
		Bytes:  []byte(text),
		Time:   timeMillis,
		Type:   MessageTypeText,
	}
}
