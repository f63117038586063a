package storychain

import (
	"time"

	"github.com/kwento-games/kwento/internal/database"
	"github.com/kwento-games/kwento/internal/evaluator"
)

type Config struct {
	// Logging all room operations at debug level
	Debug bool `envconfig:"KWENTO_DEBUG" default:"false"`

	// Port on which health check and the websocket gateway are launched
	Port string `envconfig:"KWENTO_PORT" default:"8000"`

	// Number of items in the room read cache
	CacheSize int `envconfig:"KWENTO_CACHE_SIZE" default:"1024"`

	// Number of players a room holds; the game starts when the roster fills
	RoomCapacity int `envconfig:"KWENTO_ROOM_CAPACITY" default:"3"`

	// Per-turn deadline
	TurnTime time.Duration `envconfig:"KWENTO_TURN_TIME" default:"20s"`

	// Points granted for an in-time contribution
	SubmissionReward int `envconfig:"KWENTO_SUBMISSION_REWARD" default:"2"`

	// Points deducted when a turn times out
	TimeoutPenalty int `envconfig:"KWENTO_TIMEOUT_PENALTY" default:"1"`

	// Prompts per game; clamped to the catalog size
	TotalImages int `envconfig:"KWENTO_TOTAL_IMAGES" default:"5"`

	// How often expired room records are swept from the store
	SweepInterval time.Duration `envconfig:"KWENTO_SWEEP_INTERVAL" default:"10m"`

	Db        database.Config
	Evaluator evaluator.Config
}
