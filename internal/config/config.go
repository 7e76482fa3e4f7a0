package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/arcadelab/pong-backend/internal/session"
)

type Config struct {
	Addr        string
	Env         string // "dev" | "prod"
	DatabaseURL string
	TicketTTL   time.Duration
	Session     session.Config
}

// Load reads configuration from the environment, with a .env file as
// an optional overlay for local development.
func Load() (Config, error) {
	_ = godotenv.Load() // missing .env is fine

	cfg := Config{
		Addr:        getenv("ADDR", ":8080"),
		Env:         getenv("ENV", "dev"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Session:     session.DefaultConfig(),
	}

	var err error
	if cfg.TicketTTL, err = getDuration("TICKET_TTL", 2*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.Session.TickRate, err = getInt("TICK_RATE", cfg.Session.TickRate); err != nil {
		return Config{}, err
	}
	if cfg.Session.Engine.WinPoint, err = getInt("WIN_POINT", cfg.Session.Engine.WinPoint); err != nil {
		return Config{}, err
	}
	if cfg.Session.PauseInterval, err = getDuration("PAUSE_INTERVAL", cfg.Session.PauseInterval); err != nil {
		return Config{}, err
	}
	if cfg.Session.GraceWindow, err = getDuration("GRACE_WINDOW", cfg.Session.GraceWindow); err != nil {
		return Config{}, err
	}
	if cfg.Session.EmptyTimeout, err = getDuration("EMPTY_TIMEOUT", cfg.Session.EmptyTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Session.QuadForfeitContinue, err = getBool("QUAD_FORFEIT_CONTINUE", cfg.Session.QuadForfeitContinue); err != nil {
		return Config{}, err
	}

	if cfg.Session.TickRate <= 0 {
		return Config{}, fmt.Errorf("TICK_RATE must be positive, got %d", cfg.Session.TickRate)
	}
	if cfg.Session.Engine.WinPoint <= 0 {
		return Config{}, fmt.Errorf("WIN_POINT must be positive, got %d", cfg.Session.Engine.WinPoint)
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
