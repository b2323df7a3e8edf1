package auth

import (
	"crypto/subtle"
	"errors"
	"sort"

	"github.com/c-pro/geche"

	"roomchat/internal/models"
)

var (
	ErrEmptyUsername = errors.New("username is empty")
)

// Outcome is the result of a signup call.
type Outcome int

const (
	// Created means the username was unseen and is now registered.
	Created Outcome = iota
	// Authenticated means the username exists and the password matched.
	Authenticated
	// PasswordWrong means the username exists and the password did not match.
	PasswordWrong
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Authenticated:
		return "authenticated"
	case PasswordWrong:
		return "password_wrong"
	default:
		return "unknown"
	}
}

// UserCredentials is a registered account. Passwords are compared as plain
// strings; Gender is kept only so it survives a persistence round trip.
type UserCredentials struct {
	Username string
	Password string
	Gender   int32
}

type Service struct {
	users *geche.Locker[string, *UserCredentials]
}

func NewService() *Service {
	return &Service{
		users: geche.NewLocker[string, *UserCredentials](geche.NewMapCache[string, *UserCredentials]()),
	}
}

// Signup registers username on first use and checks the password on every
// later call. A wrong password never changes stored state.
func (s *Service) Signup(user models.User, password string) (Outcome, error) {
	if user.Name == "" {
		return 0, ErrEmptyUsername
	}

	tx := s.users.Lock()
	defer tx.Unlock()

	existing, err := tx.Get(user.Name)
	if err != nil {
		tx.Set(user.Name, &UserCredentials{
			Username: user.Name,
			Password: password,
			Gender:   user.Gender,
		})
		return Created, nil
	}

	if subtle.ConstantTimeCompare([]byte(existing.Password), []byte(password)) != 1 {
		return PasswordWrong, nil
	}
	return Authenticated, nil
}

// FindUser returns a copy of the stored credentials.
func (s *Service) FindUser(username string) (UserCredentials, error) {
	tx := s.users.RLock()
	defer tx.Unlock()

	u, err := tx.Get(username)
	if err != nil {
		return UserCredentials{}, models.ErrNotFound
	}
	return *u, nil
}

// Users returns every registered account sorted by username.
func (s *Service) Users() []UserCredentials {
	tx := s.users.RLock()
	snapshot := tx.Snapshot()
	tx.Unlock()

	result := make([]UserCredentials, 0, len(snapshot))
	for _, u := range snapshot {
		result = append(result, *u)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Username < result[j].Username
	})
	return result
}

// Restore loads previously persisted accounts. Existing entries with the same
// username are replaced.
func (s *Service) Restore(users []UserCredentials) {
	tx := s.users.Lock()
	defer tx.Unlock()

	for i := range users {
		u := users[i]
		tx.Set(u.Username, &u)
	}
}

func (s *Service) Len() int {
	tx := s.users.RLock()
	defer tx.Unlock()
	return tx.Len()
}
