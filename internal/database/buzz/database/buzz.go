package database

import (
	"encoding/json"
	"fmt"

	"github.com/quizparty-games/quizparty/internal/database"
	"github.com/quizparty-games/quizparty/internal/database/buzz/model"
	bolt "go.etcd.io/bbolt"
)

const bucket = "buzzes"

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

func key(roomID, questionID string) []byte {
	return []byte(roomID + "|" + questionID)
}

// Store is a conditional insert: bbolt serializes write transactions, so the
// check and the put are atomic and at most one buzz can ever land per
// (room, question). The loser gets ErrConflict.
func (db *DB) Store(m model.Buzz) error {
	bytes, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	pk := key(m.RoomID, m.QuestionID)
	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}

		if b.Get(pk) != nil {
			return ErrConflict
		}

		if err := b.Put(pk, bytes); err != nil {
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

func (db *DB) Fetch(roomID, questionID string) (model.Buzz, error) {
	var m model.Buzz
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return ErrNotFound
		}

		bytes := b.Get(key(roomID, questionID))
		if bytes == nil {
			return ErrNotFound
		}

		return json.Unmarshal(bytes, &m)
	}); err != nil {
		if err == ErrNotFound {
			return m, err
		}
		return m, fmt.Errorf("view transaction error: %w", err)
	}

	return m, nil
}

// Delete reopens the buzzer for the question. Deleting an absent buzz is a
// no-op, which is what makes unlock idempotent.
func (db *DB) Delete(roomID, questionID string) error {
	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}

		return b.Delete(key(roomID, questionID))
	}); err != nil {
		return fmt.Errorf("update transaction error: %w", err)
	}

	return nil
}
