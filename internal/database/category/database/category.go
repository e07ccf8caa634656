package database

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/quizparty-games/quizparty/internal/cache"
	"github.com/quizparty-games/quizparty/internal/database"
	"github.com/quizparty-games/quizparty/internal/database/category/model"
	bolt "go.etcd.io/bbolt"
)

const (
	bucket         = "categories"
	templateBucket = "question_templates"
)

var ErrNotFound = fmt.Errorf("not found")

func New(db *database.DB, cache cache.Cache) *DB {
	return &DB{sDB: db, cache: cache}
}

type DB struct {
	sDB *database.DB

	cache cache.Cache
}

func (db *DB) Store(m model.Category) error {
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

		if db.cache != nil {
			db.cache.Add(m.ID, m)
		}

		return nil
	}); err != nil {
		return fmt.Errorf("update transaction error: %w", err)
	}

	return nil
}

func (db *DB) StoreTemplate(m model.Template) error {
	bytes, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(templateBucket))
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

func (db *DB) Fetch(categoryID string) (model.Category, error) {
	if db.cache != nil {
		if v, ok := db.cache.Get(categoryID); ok {
			return v.(model.Category), nil
		}
	}

	var c model.Category
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return ErrNotFound
		}

		bytes := b.Get([]byte(categoryID))
		if bytes == nil {
			return ErrNotFound
		}

		return json.Unmarshal(bytes, &c)
	}); err != nil {
		if err == ErrNotFound {
			return c, err
		}
		return c, fmt.Errorf("view transaction error: %w", err)
	}

	if db.cache != nil {
		db.cache.Add(categoryID, c)
	}

	return c, nil
}

// FetchAll returns every category ordered by name.
func (db *DB) FetchAll() ([]model.Category, error) {
	var list []model.Category
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var c model.Category
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("unmarshal: %w", err)
			}
			list = append(list, c)
			return nil
		})
	}); err != nil {
		return nil, fmt.Errorf("view transaction error: %w", err)
	}

	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	return list, nil
}

func (db *DB) FetchTemplates(categoryID string) ([]model.Template, error) {
	var list []model.Template
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(templateBucket))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var t model.Template
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("unmarshal: %w", err)
			}
			if t.CategoryID == categoryID {
				list = append(list, t)
			}
			return nil
		})
	}); err != nil {
		return nil, fmt.Errorf("view transaction error: %w", err)
	}

	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	return list, nil
}

// Empty reports whether no categories have been stored yet.
func (db *DB) Empty() (bool, error) {
	empty := true
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}

		k, _ := b.Cursor().First()
		empty = k == nil
		return nil
	}); err != nil {
		return false, fmt.Errorf("view transaction error: %w", err)
	}

	return empty, nil
}
