package database

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/quizparty-games/quizparty/internal/database"
	"github.com/quizparty-games/quizparty/internal/database/answer/model"
	bolt "go.etcd.io/bbolt"
)

const bucket = "text_answers"

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

func key(roomID, questionID, participantID string) []byte {
	return []byte(roomID + "|" + questionID + "|" + participantID)
}

// Store rejects resubmission: the check and the put share one write
// transaction, so a duplicate always surfaces as ErrConflict.
func (db *DB) Store(m model.TextAnswer) error {
	bytes, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	pk := key(m.RoomID, m.QuestionID, m.ParticipantID)
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

func (db *DB) FetchByQuestion(roomID, questionID string) ([]model.TextAnswer, error) {
	prefix := roomID + "|" + questionID + "|"

	var list []model.TextAnswer
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			if len(k) < len(prefix) || string(k[:len(prefix)]) != prefix {
				return nil
			}
			var a model.TextAnswer
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("unmarshal: %w", err)
			}
			list = append(list, a)
			return nil
		})
	}); err != nil {
		return nil, fmt.Errorf("view transaction error: %w", err)
	}

	sort.Slice(list, func(i, j int) bool { return list[i].SubmittedAt.Before(list[j].SubmittedAt) })

	return list, nil
}

// Judge marks every answer of the question in one write transaction. Any
// already-judged answer fails the whole batch with ErrConflict so a retried
// judgement can never award twice.
func (db *DB) Judge(roomID, questionID string, correct map[string]bool, points int) ([]model.TextAnswer, error) {
	prefix := roomID + "|" + questionID + "|"

	var judged []model.TextAnswer
	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}

		var pending []model.TextAnswer
		if err := b.ForEach(func(k, v []byte) error {
			if len(k) < len(prefix) || string(k[:len(prefix)]) != prefix {
				return nil
			}
			var a model.TextAnswer
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("unmarshal: %w", err)
			}
			if a.Judged {
				return ErrConflict
			}
			pending = append(pending, a)
			return nil
		}); err != nil {
			return err
		}

		for _, a := range pending {
			ok := correct[a.ParticipantID]
			pts := 0
			if ok {
				pts = points
			}

			a.Judged = true
			a.Correct = &ok
			a.Points = &pts

			bytes, err := json.Marshal(a)
			if err != nil {
				return fmt.Errorf("marshal: %w", err)
			}
			if err := b.Put(key(a.RoomID, a.QuestionID, a.ParticipantID), bytes); err != nil {
				return fmt.Errorf("put to bucket error: %w", err)
			}

			judged = append(judged, a)
		}

		return nil
	}); err != nil {
		if err == ErrConflict {
			return nil, err
		}
		return nil, fmt.Errorf("update transaction error: %w", err)
	}

	sort.Slice(judged, func(i, j int) bool { return judged[i].SubmittedAt.Before(judged[j].SubmittedAt) })

	return judged, nil
}
