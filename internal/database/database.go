package database

import (
	"context"
	"fmt"
	"time"

	"github.com/kwento-games/kwento/internal/logging"
	bolt "go.etcd.io/bbolt"
)

type Config struct {
	// Path to the bbolt file holding room state
	FilePath string `envconfig:"KWENTO_DB_FILE_PATH" default:"kwento.db"`

	// A room record untouched for longer than this is treated as expired
	RoomTTL time.Duration `envconfig:"KWENTO_ROOM_TTL" default:"2h"`
}

type DB struct {
	DB *bolt.DB
}

func NewFromEnv(ctx context.Context, config *Config) (*DB, error) {
	logger := logging.FromContext(ctx)
	logger.Infof("creating db connection")

	db, err := bolt.Open(config.FilePath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("creating connection DB: %w", err)
	}

	return &DB{DB: db}, nil
}

func (db *DB) Close(ctx context.Context) error {
	logger := logging.FromContext(ctx)
	logger.Infof("closing DB connection")

	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("error close DB connection: %w", err)
	}

	return nil
}
