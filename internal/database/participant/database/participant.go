package database

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/quizparty-games/quizparty/internal/database"
	"github.com/quizparty-games/quizparty/internal/database/participant/model"
	bolt "go.etcd.io/bbolt"
)

const bucket = "participants"

var ErrNotFound = fmt.Errorf("not found")

func New(db *database.DB) *DB {
	return &DB{sDB: db}
}

type DB struct {
	sDB *database.DB
}

func (db *DB) Store(m model.Participant) error {
	bytes, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}

		if err := b.Put([]byte(m.ID), bytes); err != nil {
			return fmt.Errorf("put to bucket error: %w", err)
		}

		return nil
	}); err != nil {
		return fmt.Errorf("update transaction error: %w", err)
	}

	return nil
}

func (db *DB) Fetch(participantID string) (model.Participant, error) {
	var p model.Participant
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return ErrNotFound
		}

		bytes := b.Get([]byte(participantID))
		if bytes == nil {
			return ErrNotFound
		}

		return json.Unmarshal(bytes, &p)
	}); err != nil {
		if err == ErrNotFound {
			return p, err
		}
		return p, fmt.Errorf("view transaction error: %w", err)
	}

	return p, nil
}

// FetchByRoom returns the room's participants ordered by join time.
func (db *DB) FetchByRoom(roomID string) ([]model.Participant, error) {
	list, err := db.scanRoom(roomID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].JoinedAt.Before(list[j].JoinedAt)
	})

	return list, nil
}

// Ranking returns the room's participants with role player, descending by
// score. Ties keep join order.
func (db *DB) Ranking(roomID string) ([]model.Participant, error) {
	list, err := db.scanRoom(roomID)
	if err != nil {
		return nil, err
	}

	players := list[:0]
	for _, p := range list {
		if p.Role == model.RolePlayer {
			players = append(players, p)
		}
	}

	sort.SliceStable(players, func(i, j int) bool {
		if players[i].Score != players[j].Score {
			return players[i].Score > players[j].Score
		}
		return players[i].JoinedAt.Before(players[j].JoinedAt)
	})

	return players, nil
}

// AddScore applies the delta inside a single write transaction.
func (db *DB) AddScore(participantID string, delta int) (model.Participant, error) {
	var p model.Participant
	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return ErrNotFound
		}

		bytes := b.Get([]byte(participantID))
		if bytes == nil {
			return ErrNotFound
		}

		if err := json.Unmarshal(bytes, &p); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}

		p.Score += delta
		if p.Score < 0 {
			p.Score = 0
		}

		bytes, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}

		return b.Put([]byte(p.ID), bytes)
	}); err != nil {
		if err == ErrNotFound {
			return p, err
		}
		return p, fmt.Errorf("update transaction error: %w", err)
	}

	return p, nil
}

// SetConn rewrites the participant's connection handle. An empty connID marks
// the participant disconnected.
func (db *DB) SetConn(participantID, connID string) error {
	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return ErrNotFound
		}

		bytes := b.Get([]byte(participantID))
		if bytes == nil {
			return ErrNotFound
		}

		var p model.Participant
		if err := json.Unmarshal(bytes, &p); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}

		p.ConnID = connID
		bytes, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}

		return b.Put([]byte(p.ID), bytes)
	}); err != nil {
		if err == ErrNotFound {
			return err
		}
		return fmt.Errorf("update transaction error: %w", err)
	}

	return nil
}

func (db *DB) scanRoom(roomID string) ([]model.Participant, error) {
	var list []model.Participant
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var p model.Participant
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("unmarshal: %w", err)
			}
			if p.RoomID == roomID {
				list = append(list, p)
			}
			return nil
		})
	}); err != nil {
		return nil, fmt.Errorf("view transaction error: %w", err)
	}

	return list, nil
}
