package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/quizparty-games/quizparty/internal/cache"
	"github.com/quizparty-games/quizparty/internal/database"
	bolt "go.etcd.io/bbolt"
)

const bucket = "session_tokens"

var ErrNotFound = fmt.Errorf("not found")

// Store issues and resolves rejoin tokens. Tokens are the sole rejoin
// credential, durable across disconnects, with no server-side expiry.
type Store struct {
	sDB *database.DB

	cache cache.Cache
}

func New(db *database.DB, cache cache.Cache) *Store {
	return &Store{sDB: db, cache: cache}
}

// Issue mints an opaque 256-bit token bound to the participant.
func (s *Store) Issue(participantID string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	tok := hex.EncodeToString(raw)

	if err := s.sDB.DB.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}

		if err := b.Put([]byte(tok), []byte(participantID)); err != nil {
			return fmt.Errorf("put to bucket error: %w", err)
		}

		return nil
	}); err != nil {
		return "", fmt.Errorf("update transaction error: %w", err)
	}

	if s.cache != nil {
		s.cache.Add(tok, participantID)
	}

	return tok, nil
}

func (s *Store) Resolve(tok string) (string, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(tok); ok {
			return v.(string), nil
		}
	}

	var participantID string
	if err := s.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return ErrNotFound
		}

		bytes := b.Get([]byte(tok))
		if bytes == nil {
			return ErrNotFound
		}

		participantID = string(bytes)
		return nil
	}); err != nil {
		if err == ErrNotFound {
			return "", err
		}
		return "", fmt.Errorf("view transaction error: %w", err)
	}

	if s.cache != nil {
		s.cache.Add(tok, participantID)
	}

	return participantID, nil
}
