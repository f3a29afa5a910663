package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App        AppConfig
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Broker     BrokerConfig
	Extraction ExtractionConfig
	Composer   ComposerConfig
	Bandit     BanditConfig
	JWT        JWTConfig
}

type AppConfig struct {
	Name        string
	Version     string
	Environment string
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
}

type BrokerConfig struct {
	Stream      string
	Group       string
	DeadLetter  string
	LeaseWindow time.Duration
	WorkerCount int
}

type ExtractionConfig struct {
	Endpoint   string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

type ComposerConfig struct {
	Endpoint          string
	BasicAuthUsername string
	BasicAuthPassword string
}

type BanditConfig struct {
	ConfidenceThreshold float64
	Alpha               float64
	RewardTimeout       time.Duration
}

type JWTConfig struct {
	SecretKey string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, errors.New("invalid redis database")
	}

	workerCount, err := strconv.Atoi(getEnv("WORKER_COUNT", "4"))
	if err != nil || workerCount <= 0 {
		return nil, errors.New("invalid worker count")
	}

	leaseWindow, err := time.ParseDuration(getEnv("BROKER_LEASE_WINDOW", "30s"))
	if err != nil {
		return nil, errors.New("invalid broker lease window")
	}

	extractionTimeout, err := time.ParseDuration(getEnv("EXTRACTION_TIMEOUT", "10s"))
	if err != nil {
		return nil, errors.New("invalid extraction timeout")
	}

	extractionRetries, err := strconv.Atoi(getEnv("EXTRACTION_MAX_RETRIES", "2"))
	if err != nil || extractionRetries < 0 {
		return nil, errors.New("invalid extraction retry count")
	}

	confidenceThreshold, err := strconv.ParseFloat(getEnv("CONFIDENCE_THRESHOLD", "0.6"), 64)
	if err != nil || confidenceThreshold < 0 || confidenceThreshold > 1 {
		return nil, errors.New("invalid confidence threshold")
	}

	alpha, err := strconv.ParseFloat(getEnv("BANDIT_ALPHA", "1.0"), 64)
	if err != nil || alpha < 0 {
		return nil, errors.New("invalid bandit alpha")
	}

	rewardTimeout, err := time.ParseDuration(getEnv("REWARD_TIMEOUT", "2m"))
	if err != nil {
		return nil, errors.New("invalid reward timeout")
	}

	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Field Dispatch Worker"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Environment: getEnv("APP_ENV", "development"),
		},
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "field_dispatch"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			RedisHost:     getEnv("REDIS_HOST", "localhost"),
			RedisPort:     getEnv("REDIS_PORT", "6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       redisDB,
		},
		Broker: BrokerConfig{
			Stream:      getEnv("BROKER_STREAM", "dispatch:events"),
			Group:       getEnv("BROKER_GROUP", "dispatch-workers"),
			DeadLetter:  getEnv("BROKER_DEADLETTER", "dispatch:deadletter"),
			LeaseWindow: leaseWindow,
			WorkerCount: workerCount,
		},
		Extraction: ExtractionConfig{
			Endpoint:   getEnv("EXTRACTION_ENDPOINT", ""),
			APIKey:     getEnv("EXTRACTION_API_KEY", ""),
			Model:      getEnv("EXTRACTION_MODEL", "gpt-4o-mini"),
			Timeout:    extractionTimeout,
			MaxRetries: extractionRetries,
		},
		Composer: ComposerConfig{
			Endpoint:          getEnv("COMPOSER_ENDPOINT", ""),
			BasicAuthUsername: getEnv("COMPOSER_BASIC_AUTH_USERNAME", ""),
			BasicAuthPassword: getEnv("COMPOSER_BASIC_AUTH_PASSWORD", ""),
		},
		Bandit: BanditConfig{
			ConfidenceThreshold: confidenceThreshold,
			Alpha:               alpha,
			RewardTimeout:       rewardTimeout,
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, errors.New("missing database password")
	}

	if cfg.Extraction.Endpoint == "" {
		return nil, errors.New("missing extraction endpoint")
	}

	if cfg.JWT.SecretKey == "" {
		return nil, errors.New("missing jwt secret")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return defaultVal
}
