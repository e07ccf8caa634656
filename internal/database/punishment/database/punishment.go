package database

import (
	"encoding/json"
	"fmt"

	"github.com/quizparty-games/quizparty/internal/database"
	"github.com/quizparty-games/quizparty/internal/database/punishment/model"
	bolt "go.etcd.io/bbolt"
)

const bucket = "punishments"

var ErrNotFound = fmt.Errorf("not found")

func New(db *database.DB) *DB {
	return &DB{sDB: db}
}

type DB struct {
	sDB *database.DB
}

func key(roomID, participantID string) []byte {
	return []byte(roomID + "|" + participantID)
}

// Store overwrites any punishment the participant is already serving; a new
// wheel penalty replaces the old one.
func (db *DB) Store(m model.ActivePunishment) error {
	bytes, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}

		if err := b.Put(key(m.RoomID, m.ParticipantID), bytes); err != nil {
			return fmt.Errorf("put to bucket error: %w", err)
		}

		return nil
	}); err != nil {
		return fmt.Errorf("update transaction error: %w", err)
	}

	return nil
}

func (db *DB) FetchByRoom(roomID string) ([]model.ActivePunishment, error) {
	prefix := roomID + "|"

	var list []model.ActivePunishment
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			if len(k) < len(prefix) || string(k[:len(prefix)]) != prefix {
				return nil
			}
			var p model.ActivePunishment
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("unmarshal: %w", err)
			}
			list = append(list, p)
			return nil
		})
	}); err != nil {
		return nil, fmt.Errorf("view transaction error: %w", err)
	}

	return list, nil
}

// DecrementByRoom ticks every punishment in the room down by one question and
// reaps the expired ones, all in a single write transaction. The reaped
// punishments are returned so the caller can announce them.
func (db *DB) DecrementByRoom(roomID string) ([]model.ActivePunishment, error) {
	prefix := roomID + "|"

	var expired []model.ActivePunishment
	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}

		var remaining []model.ActivePunishment
		if err := b.ForEach(func(k, v []byte) error {
			if len(k) < len(prefix) || string(k[:len(prefix)]) != prefix {
				return nil
			}
			var p model.ActivePunishment
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("unmarshal: %w", err)
			}
			p.Remaining--
			if p.Remaining <= 0 {
				expired = append(expired, p)
			} else {
				remaining = append(remaining, p)
			}
			return nil
		}); err != nil {
			return err
		}

		for _, p := range expired {
			if err := b.Delete(key(p.RoomID, p.ParticipantID)); err != nil {
				return fmt.Errorf("delete from bucket error: %w", err)
			}
		}

		for _, p := range remaining {
			bytes, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("marshal: %w", err)
			}
			if err := b.Put(key(p.RoomID, p.ParticipantID), bytes); err != nil {
				return fmt.Errorf("put to bucket error: %w", err)
			}
		}

		return nil
	}); err != nil {
		return nil, fmt.Errorf("update transaction error: %w", err)
	}

	return expired, nil
}
