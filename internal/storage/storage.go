package storage

import (
	"context"
	"fmt"

	"roomchat/internal/auth"
	"roomchat/internal/chat"
)

const (
	BackendFiles = "files"
	BackendBolt  = "bolt"
)

// Snapshot is the full persisted state.
type Snapshot struct {
	Rooms []chat.Snapshot
	Users []auth.UserCredentials
}

// Store persists full-state snapshots. Every FlushAll replaces what a
// previous FlushAll wrote for the same keys.
type Store interface {
	LoadAll(ctx context.Context) (Snapshot, error)
	FlushAll(ctx context.Context, snapshot Snapshot) error
	Close() error
}

// Open returns the store for backend rooted at dir. dir is created if absent.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case "", BackendFiles:
		return NewFileStorage(dir)
	case BackendBolt:
		return NewBboltStorage(dir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
