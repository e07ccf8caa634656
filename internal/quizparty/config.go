package quizparty

import (
	"time"

	"github.com/quizparty-games/quizparty/internal/database"
)

type Config struct {
	Debug bool `envconfig:"QUIZPARTY_DEBUG" default:"false"`

	Port     string `envconfig:"QUIZPARTY_PORT" default:"3001"`
	ProfPort string `envconfig:"QUIZPARTY_PROF_PORT" default:"8888"`

	CacheSize int `envconfig:"QUIZPARTY_CACHE_SIZE" default:"1024"`

	ChanceProbability float64       `envconfig:"QUIZPARTY_CHANCE_PROBABILITY" default:"0.2"`
	ChanceRevealDelay time.Duration `envconfig:"QUIZPARTY_CHANCE_REVEAL_DELAY" default:"6s"`
	UnlockCountdown   time.Duration `envconfig:"QUIZPARTY_UNLOCK_COUNTDOWN" default:"3s"`

	WSPingInterval time.Duration `envconfig:"QUIZPARTY_WS_PING_INTERVAL" default:"30s"`
	WSWriteTimeout time.Duration `envconfig:"QUIZPARTY_WS_WRITE_TIMEOUT" default:"10s"`

	DB database.Config
}
