package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8085" validate:"min=1000,max=65535"`

	// 0 keeps messages in memory only; they are gone on restart.
	RetentionHours int `env:"RETENTION_HOURS" envDefault:"0" validate:"min=0"`

	// memory | sqlite | postgres | redis. Ignored while RetentionHours is 0.
	HistoryBackend string `env:"HISTORY_BACKEND" envDefault:"sqlite" validate:"oneof=memory sqlite postgres redis"`

	SqlitePath string `env:"SQLITE_PATH" envDefault:"square.db"`

	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"square_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"square_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"square_db"`

	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort uint16 `env:"REDIS_PORT" envDefault:"6379" validate:"min=1000,max=65535"`

	DefaultCity string   `env:"DEFAULT_CITY" envDefault:"konigsbrunn"`
	CorsOrigins []string `env:"CORS_ORIGINS" envSeparator:","`

	BackfillLimit int `env:"BACKFILL_LIMIT" envDefault:"50" validate:"min=0,max=500"`
	SendBuffer    int `env:"SEND_BUFFER"    envDefault:"64" validate:"min=1"`
	NearbyLimit   int `env:"NEARBY_LIMIT"   envDefault:"3"  validate:"min=1,max=20"`
	MaxTextLen    int `env:"MAX_TEXT_LEN"   envDefault:"200" validate:"min=1"`

	PruneInterval time.Duration `env:"PRUNE_INTERVAL" envDefault:"60s" validate:"min=1s"`
	TypingTTL     time.Duration `env:"TYPING_TTL"     envDefault:"4s"  validate:"min=1s"`
	IdleTimeout   time.Duration `env:"IDLE_TIMEOUT"   envDefault:"60s" validate:"min=1s"`
}

// Retention converts the hour count into a duration; zero means memory-only.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	// Validate the config
	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
