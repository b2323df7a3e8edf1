package content

import (
	"errors"
	"regexp"
)

const MaxNameLength = 64

var (
	nameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

// ValidateName checks that a username or room name is non-empty, at most
// MaxNameLength bytes, and contains only alphanumerics, dot, dash and
// underscore. Names end up in file names on disk.
func ValidateName(name string) error {
	if name == "" {
		return errors.New("name cannot be empty")
	}
	if len(name) > MaxNameLength {
		return errors.New("name is too long")
	}
	if !nameRegex.MatchString(name) {
		return errors.New("name contains invalid characters (allowed: alphanumeric, dot, dash, underscore)")
	}
	return nil
}
