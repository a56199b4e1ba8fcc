package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/rakadenta/cakeorder/internal/models"
)

type Config struct {
	Env  string
	Port int

	DB_HOST     string
	DB_PORT     string
	DB_USER     string
	DB_PASSWORD string
	DB_NAME     string

	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	LogLevel string

	KafkaAddress string

	ES_URL      string
	ES_USER     string
	ES_PASSWORD string
}

func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	cfg := &Config{
		Env:  EnvDefault("ENV", "dev"),
		Port: EnvIntDefault("PORT", 8080),

		DB_HOST:     os.Getenv("DB_HOST"),
		DB_PORT:     os.Getenv("DB_PORT"),
		DB_USER:     os.Getenv("DB_USER"),
		DB_PASSWORD: os.Getenv("DB_PASSWORD"),
		DB_NAME:     os.Getenv("DB_NAME"),

		AccessSecret:  []byte(os.Getenv("ACCESS_TOKEN_KEY")),
		RefreshSecret: []byte(os.Getenv("REFRESH_TOKEN_KEY")),
		AccessTTL:     EnvDurationDefault("ACCESS_TOKEN_AGE", 15*time.Minute),
		RefreshTTL:    EnvDurationDefault("REFRESH_TOKEN_AGE", 7*24*time.Hour),

		LogLevel: EnvDefault("LOG_LEVEL", "info"),

		KafkaAddress: os.Getenv("KAFKA_ADDRESS"),

		ES_URL:      os.Getenv("ES_URL"),
		ES_USER:     os.Getenv("ES_USER"),
		ES_PASSWORD: os.Getenv("ES_PASSWORD"),
	}

	MustNonEmptyBytes(cfg.AccessSecret, "ACCESS_TOKEN_KEY")
	MustNonEmptyBytes(cfg.RefreshSecret, "REFRESH_TOKEN_KEY")

	return cfg, nil
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.DB_USER, cfg.DB_PASSWORD, cfg.DB_HOST, cfg.DB_PORT, cfg.DB_NAME,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.RefreshToken{}); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	return db, nil
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func MustNonEmptyBytes(value []byte, envName string) {
	if len(value) == 0 {
		log.Fatalf("missing required env %s", envName)
	}
}
