package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const tempPattern = ".tmp-*"

// FileStorage keeps one file per room and per user inside a directory.
type FileStorage struct {
	dir string
}

func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return &FileStorage{dir: dir}, nil
}

func (s *FileStorage) Close() error {
	return nil
}

// LoadAll decodes every room_ and user_ file in the directory. Any decode
// failure aborts the load.
func (s *FileStorage) LoadAll(ctx context.Context) (Snapshot, error) {
	var snapshot Snapshot

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return snapshot, fmt.Errorf("failed to read data dir: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return snapshot, err
		}
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		switch {
		case strings.HasPrefix(name, roomPrefix):
			var dbRoom DBRoom
			if err := s.read(name, &dbRoom); err != nil {
				return snapshot, err
			}
			snapshot.Rooms = append(snapshot.Rooms, dbRoom.toSnapshot())
		case strings.HasPrefix(name, userPrefix):
			var dbUser DBUser
			if err := s.read(name, &dbUser); err != nil {
				return snapshot, err
			}
			snapshot.Users = append(snapshot.Users, dbUser.toCredentials())
		}
	}

	return snapshot, nil
}

func (s *FileStorage) read(name string, v Storeable) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := v.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

// FlushAll overwrites one file per room and per user.
func (s *FileStorage) FlushAll(ctx context.Context, snapshot Snapshot) error {
	for _, room := range snapshot.Rooms {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.write(roomToDB(room)); err != nil {
			return err
		}
	}
	for _, user := range snapshot.Users {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.write(userToDB(user)); err != nil {
			return err
		}
	}
	return nil
}

// write replaces the file for v through a temp file and rename, so a crash
// mid-write leaves either the old or the new contents.
func (s *FileStorage) write(v Storeable) error {
	name := string(v.Key())
	data, err := v.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, tempPattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}
