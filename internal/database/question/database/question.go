package database

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/quizparty-games/quizparty/internal/database"
	categoryModel "github.com/quizparty-games/quizparty/internal/database/category/model"
	"github.com/quizparty-games/quizparty/internal/database/question/model"
	bolt "go.etcd.io/bbolt"
)

const bucket = "questions"

var ErrNotFound = fmt.Errorf("not found")

func New(db *database.DB) *DB {
	return &DB{sDB: db}
}

type DB struct {
	sDB *database.DB
}

// CopyTemplates instantiates the category's templates as room questions with
// contiguous order indexes. Already-instantiated (room, category) pairs are
// left untouched so a second category start cannot duplicate questions.
func (db *DB) CopyTemplates(roomID, categoryID string, templates []categoryModel.Template) ([]model.Question, error) {
	existing, err := db.FetchByRoomCategory(roomID, categoryID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	questions := make([]model.Question, 0, len(templates))
	for i, t := range templates {
		questions = append(questions, model.Question{
			ID:         uuid.New().String(),
			RoomID:     roomID,
			CategoryID: categoryID,
			Text:       t.Text,
			ImageURL:   t.ImageURL,
			Order:      i,
		})
	}

	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}

		for _, q := range questions {
			bytes, err := json.Marshal(q)
			if err != nil {
				return fmt.Errorf("marshal: %w", err)
			}
			if err := b.Put([]byte(q.ID), bytes); err != nil {
				return fmt.Errorf("put to bucket error: %w", err)
			}
		}

		return nil
	}); err != nil {
		return nil, fmt.Errorf("update transaction error: %w", err)
	}

	return questions, nil
}

func (db *DB) Fetch(questionID string) (model.Question, error) {
	var q model.Question
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return ErrNotFound
		}

		bytes := b.Get([]byte(questionID))
		if bytes == nil {
			return ErrNotFound
		}

		return json.Unmarshal(bytes, &q)
	}); err != nil {
		if err == ErrNotFound {
			return q, err
		}
		return q, fmt.Errorf("view transaction error: %w", err)
	}

	return q, nil
}

func (db *DB) FetchByRoomCategory(roomID, categoryID string) ([]model.Question, error) {
	var list []model.Question
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var q model.Question
			if err := json.Unmarshal(v, &q); err != nil {
				return fmt.Errorf("unmarshal: %w", err)
			}
			if q.RoomID == roomID && q.CategoryID == categoryID {
				list = append(list, q)
			}
			return nil
		})
	}); err != nil {
		return nil, fmt.Errorf("view transaction error: %w", err)
	}

	sort.Slice(list, func(i, j int) bool { return list[i].Order < list[j].Order })

	return list, nil
}

// FetchByOrder returns the idx-th question of (room, category).
func (db *DB) FetchByOrder(roomID, categoryID string, idx int) (model.Question, error) {
	list, err := db.FetchByRoomCategory(roomID, categoryID)
	if err != nil {
		return model.Question{}, err
	}

	if idx < 0 || idx >= len(list) {
		return model.Question{}, ErrNotFound
	}

	return list[idx], nil
}

func (db *DB) CountByRoomCategory(roomID, categoryID string) (int, error) {
	list, err := db.FetchByRoomCategory(roomID, categoryID)
	if err != nil {
		return 0, err
	}

	return len(list), nil
}

func (db *DB) MarkJudged(questionID string) error {
	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return ErrNotFound
		}

		bytes := b.Get([]byte(questionID))
		if bytes == nil {
			return ErrNotFound
		}

		var q model.Question
		if err := json.Unmarshal(bytes, &q); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}

		q.Judged = true
		bytes, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}

		return b.Put([]byte(q.ID), bytes)
	}); err != nil {
		if err == ErrNotFound {
			return err
		}
		return fmt.Errorf("update transaction error: %w", err)
	}

	return nil
}

// DeleteByRoom wipes every instantiated question of the room. Used when the
// host reconfigures categories while still in the lobby.
func (db *DB) DeleteByRoom(roomID string) error {
	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}

		var keys [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			var q model.Question
			if err := json.Unmarshal(v, &q); err != nil {
				return fmt.Errorf("unmarshal: %w", err)
			}
			if q.RoomID == roomID {
				key := make([]byte, len(k))
				copy(key, k)
				keys = append(keys, key)
			}
			return nil
		}); err != nil {
			return err
		}

		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("delete from bucket error: %w", err)
			}
		}

		return nil
	}); err != nil {
		return fmt.Errorf("update transaction error: %w", err)
	}

	return nil
}
