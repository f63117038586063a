package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kwento-games/kwento/internal/byteutil"
	"github.com/kwento-games/kwento/internal/cache"
	"github.com/kwento-games/kwento/internal/database"
	"github.com/kwento-games/kwento/internal/database/roomstate/model"
	bolt "go.etcd.io/bbolt"
)

const bucket = "rooms"

var (
	NotFoundErr     = fmt.Errorf("not found")
	InvalidEntryErr = fmt.Errorf("invalid entry")
)

func New(db *database.DB, c cache.Cache, ttl time.Duration) *DB {
	return &DB{sDB: db, cache: c, ttl: ttl}
}

type DB struct {
	sDB   *database.DB
	cache cache.Cache
	ttl   time.Duration
}

// Fetch reads the room record for key. An expired or structurally invalid
// record behaves as absent. The cache holds marshaled records and every fetch
// decodes its own copy, so callers may mutate the result freely.
func (db *DB) Fetch(key string) (model.Room, error) {
	if db.cache != nil {
		if v, ok := db.cache.Get(key); ok {
			room, err := decodeRoom(v.([]byte))
			if err == nil {
				if room.Expired(time.Now(), db.ttl) {
					db.cache.Delete(key)
					return model.Room{}, NotFoundErr
				}
				return room, nil
			}
			db.cache.Delete(key)
		}
	}

	var bytes []byte
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return NotFoundErr
		}
		// The value slice is only valid inside the transaction.
		if v := b.Get([]byte(key)); v != nil {
			bytes = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		if err == NotFoundErr {
			return model.Room{}, NotFoundErr
		}
		return model.Room{}, fmt.Errorf("view transaction error: %w", err)
	}

	if len(bytes) == 0 {
		return model.Room{}, NotFoundErr
	}

	room, err := decodeRoom(bytes)
	if err != nil {
		return model.Room{}, err
	}

	if room.Expired(time.Now(), db.ttl) {
		return model.Room{}, NotFoundErr
	}

	if db.cache != nil {
		db.cache.Add(key, bytes)
	}

	return room, nil
}

func decodeRoom(bytes []byte) (model.Room, error) {
	var room model.Room
	if err := json.Unmarshal(bytes, &room); err != nil {
		return model.Room{}, fmt.Errorf("%w: unmarshal %q: %v", InvalidEntryErr, byteutil.BytesToString(bytes), err)
	}

	if err := room.Validate(); err != nil {
		return model.Room{}, fmt.Errorf("%w: %v", InvalidEntryErr, err)
	}

	return room, nil
}

// Store writes the room record, refreshing its ttl stamp.
func (db *DB) Store(m model.Room) error {
	m.UpdatedAt = time.Now()

	tx, err := db.sDB.DB.Begin(true)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	defer tx.Rollback() // nolint

	b := tx.Bucket([]byte(bucket))
	if b == nil {
		bs, err := tx.CreateBucket([]byte(bucket))
		if err != nil {
			return fmt.Errorf("can not create bucket: %w", err)
		}
		b = bs
	}

	bytes, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	if err := b.Put([]byte(m.Key), bytes); err != nil {
		return fmt.Errorf("put to bucket error: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	if db.cache != nil {
		db.cache.Add(m.Key, bytes)
	}

	return nil
}

func (db *DB) Delete(key string) error {
	tx, err := db.sDB.DB.Begin(true)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	defer tx.Rollback() // nolint

	if b := tx.Bucket([]byte(bucket)); b != nil {
		if err := b.Delete([]byte(key)); err != nil {
			return fmt.Errorf("delete from bucket error: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	if db.cache != nil {
		db.cache.Delete(key)
	}

	return nil
}

// Sweep removes expired and corrupt records and returns how many were dropped.
func (db *DB) Sweep() (int, error) {
	now := time.Now()
	var stale []string

	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var room model.Room
			if err := json.Unmarshal(v, &room); err != nil {
				stale = append(stale, string(k))
				return nil
			}
			if room.Validate() != nil || room.Expired(now, db.ttl) {
				stale = append(stale, string(k))
			}
			return nil
		})
	}); err != nil {
		return 0, fmt.Errorf("view transaction error: %w", err)
	}

	for _, key := range stale {
		if err := db.Delete(key); err != nil {
			return 0, fmt.Errorf("delete %q: %w", key, err)
		}
	}

	return len(stale), nil
}
