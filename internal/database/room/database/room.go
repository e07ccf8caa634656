package database

import (
	"encoding/json"
	"fmt"

	"github.com/quizparty-games/quizparty/internal/database"
	"github.com/quizparty-games/quizparty/internal/database/room/model"
	bolt "go.etcd.io/bbolt"
)

const (
	bucket     = "rooms"
	codeBucket = "room_codes"
)

var (
	ErrNotFound = fmt.Errorf("not found")
	ErrConflict = fmt.Errorf("conflict")
)

func New(db *database.DB) *DB {
	return &DB{sDB: db}
}

type DB struct {
	sDB *database.DB
}

// Store creates the room and binds its join code. An active room already
// holding the same code makes the whole transaction fail with ErrConflict so
// the caller can regenerate.
func (db *DB) Store(m model.Room) error {
	bytes, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}

		cb, err := tx.CreateBucketIfNotExists([]byte(codeBucket))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}

		if prev := cb.Get([]byte(m.Code)); prev != nil {
			var room model.Room
			if v := b.Get(prev); v != nil {
				if err := json.Unmarshal(v, &room); err != nil {
					return fmt.Errorf("unmarshal: %w", err)
				}
				if room.Status != model.StatusFinished {
					return ErrConflict
				}
			}
		}

		if err := cb.Put([]byte(m.Code), []byte(m.ID)); err != nil {
			return fmt.Errorf("put to bucket error: %w", err)
		}

		if err := b.Put([]byte(m.ID), bytes); err != nil {
			return fmt.Errorf("put to bucket error: %w", err)
		}

		return nil
	}); err != nil {
		if err == ErrConflict {
			return err
		}
		return fmt.Errorf("update transaction error: %w", err)
	}

	return nil
}

func (db *DB) Update(m model.Room) error {
	bytes, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return ErrNotFound
		}

		if b.Get([]byte(m.ID)) == nil {
			return ErrNotFound
		}

		if err := b.Put([]byte(m.ID), bytes); err != nil {
			return fmt.Errorf("put to bucket error: %w", err)
		}

		return nil
	}); err != nil {
		if err == ErrNotFound {
			return err
		}
		return fmt.Errorf("update transaction error: %w", err)
	}

	return nil
}

func (db *DB) Fetch(roomID string) (model.Room, error) {
	var room model.Room
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return ErrNotFound
		}

		bytes := b.Get([]byte(roomID))
		if bytes == nil {
			return ErrNotFound
		}

		return json.Unmarshal(bytes, &room)
	}); err != nil {
		if err == ErrNotFound {
			return room, err
		}
		return room, fmt.Errorf("view transaction error: %w", err)
	}

	return room, nil
}

// FetchActive returns every room not yet finished. Used to rebuild sessions
// after a restart.
func (db *DB) FetchActive() ([]model.Room, error) {
	var list []model.Room
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var room model.Room
			if err := json.Unmarshal(v, &room); err != nil {
				return fmt.Errorf("unmarshal: %w", err)
			}
			if room.Status != model.StatusFinished {
				list = append(list, room)
			}
			return nil
		})
	}); err != nil {
		return nil, fmt.Errorf("view transaction error: %w", err)
	}

	return list, nil
}

func (db *DB) FetchByCode(code string) (model.Room, error) {
	var room model.Room
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		cb := tx.Bucket([]byte(codeBucket))
		if cb == nil {
			return ErrNotFound
		}

		id := cb.Get([]byte(code))
		if id == nil {
			return ErrNotFound
		}

		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return ErrNotFound
		}

		bytes := b.Get(id)
		if bytes == nil {
			return ErrNotFound
		}

		return json.Unmarshal(bytes, &room)
	}); err != nil {
		if err == ErrNotFound {
			return room, err
		}
		return room, fmt.Errorf("view transaction error: %w", err)
	}

	return room, nil
}
