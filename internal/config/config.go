package config

import (
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the process configuration, read from the environment with a
// QUIZCLASH_ prefix (e.g. QUIZCLASH_MONGO_URI). A .env file is honored if
// present.
type Config struct {
	MongoURI    string
	MongoDB     string
	RedisAddr   string
	Port        string
	StaticDir   string
	CORSOrigins string
	LogLevel    string
}

// Load reads the configuration, applying defaults for anything unset.
func Load() *Config {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("QUIZCLASH")
	v.AutomaticEnv()

	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("mongo_db", "quizclash")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("port", "8080")
	v.SetDefault("static_dir", "public")
	v.SetDefault("cors_origins", "*")
	v.SetDefault("log_level", "info")

	return &Config{
		MongoURI:    v.GetString("mongo_uri"),
		MongoDB:     v.GetString("mongo_db"),
		RedisAddr:   strings.TrimPrefix(v.GetString("redis_addr"), "redis://"),
		Port:        v.GetString("port"),
		StaticDir:   v.GetString("static_dir"),
		CORSOrigins: v.GetString("cors_origins"),
		LogLevel:    v.GetString("log_level"),
	}
}

// SlogLevel maps the configured level name to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
