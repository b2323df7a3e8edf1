package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const boltFileName = "roomchat.db"

var (
	bucketRooms = []byte("rooms")
	bucketUsers = []byte("users")
)

// BboltStorage keeps the same records as FileStorage in a single bbolt file.
type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(dir string) (*BboltStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(dir, boltFileName), 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRooms); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketUsers); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

func (s *BboltStorage) LoadAll(ctx context.Context) (Snapshot, error) {
	var snapshot Snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketRooms).ForEach(func(k, v []byte) error {
			var dbRoom DBRoom
			if err := dbRoom.UnmarshalBinary(v); err != nil {
				return fmt.Errorf("failed to decode %s: %w", k, err)
			}
			snapshot.Rooms = append(snapshot.Rooms, dbRoom.toSnapshot())
			return nil
		}); err != nil {
			return err
		}

		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return fmt.Errorf("failed to decode %s: %w", k, err)
			}
			snapshot.Users = append(snapshot.Users, dbUser.toCredentials())
			return nil
		})
	})
	return snapshot, err
}

// FlushAll rewrites every record in a single transaction.
func (s *BboltStorage) FlushAll(ctx context.Context, snapshot Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		rooms := tx.Bucket(bucketRooms)
		for _, room := range snapshot.Rooms {
			if err := put(rooms, roomToDB(room)); err != nil {
				return err
			}
		}

		users := tx.Bucket(bucketUsers)
		for _, user := range snapshot.Users {
			if err := put(users, userToDB(user)); err != nil {
				return err
			}
		}
		return nil
	})
}

func put(b *bbolt.Bucket, v Storeable) error {
	data, err := v.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", v.Key(), err)
	}
	return b.Put(v.Key(), data)
}
