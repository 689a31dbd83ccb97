package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"
)

const devJWTSecret = "default_super_secret_key"

// defaultTimelineLockKey identifies the advisory lock serialising margin timeline writers
const defaultTimelineLockKey int64 = 7301

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	Port            string
	GinMode         string
	JWTSecret       string
	CORSOrigins     []string
	LogFile         string
	TimelineLockKey int64
}

// Load reads configs/.env when present and then the process environment
func Load() (Config, error) {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, applying development defaults
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	cfg := Config{
		DBHost:     get("DB_HOST", "localhost"),
		DBPort:     get("DB_PORT", "5432"),
		DBUser:     get("DB_USER", "postgres"),
		DBPassword: get("DB_PASSWORD", "postgres"),
		DBName:     get("DB_NAME", "postgres"),
		DBSSLMode:  get("DB_SSLMODE", "disable"),
		Port:       get("PORT", "8080"),
		GinMode:    get("GIN_MODE", "debug"),
		JWTSecret:  getenv("JWT_SECRET"),
		LogFile:    getenv("LOG_FILE"),
	}

	if cfg.JWTSecret == "" {
		if cfg.GinMode == "release" {
			return Config{}, errors.New("JWT_SECRET environment variable is required in release mode")
		}
		cfg.JWTSecret = devJWTSecret
	}

	for _, origin := range strings.Split(get("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}

	cfg.TimelineLockKey = defaultTimelineLockKey
	if raw := getenv("TIMELINE_LOCK_KEY"); raw != "" {
		key, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TIMELINE_LOCK_KEY %q: %w", raw, err)
		}
		cfg.TimelineLockKey = key
	}

	return cfg, nil
}

// DSN returns the postgres connection string
func (c Config) DSN() string {
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort + "/" + c.DBName + "?sslmode=" + c.DBSSLMode
}

// logWriters holds one writer per log file; lumberjack rotates correctly only with a single Logger per file.
var logWriters sync.Map

// LogWriter returns stdout, teed into a rotating file when LogFile is set.
// Every call for the same file returns the same writer.
func (c Config) LogWriter() io.Writer {
	if c.LogFile == "" {
		return os.Stdout
	}
	if w, ok := logWriters.Load(c.LogFile); ok {
		return w.(io.Writer)
	}

	w := io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   c.LogFile,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	})
	actual, _ := logWriters.LoadOrStore(c.LogFile, w)
	return actual.(io.Writer)
}
