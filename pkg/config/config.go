package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Redis     RedisConfig
	Allocator AllocatorConfig
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

type JWTConfig struct {
	SecretKey string
}

type RedisConfig struct {
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
}

type AllocatorConfig struct {
	// AssignmentTTL bounds the stickiness window for a visitor's assignment.
	AssignmentTTL time.Duration
	// SweepInterval is the cadence of the automatic retirement sweep.
	SweepInterval time.Duration
	// ReportSamples: Monte Carlo draws for dashboard probability-best.
	ReportSamples int
	// DefaultApprovals: manual-approval budget for training_wheels sites.
	DefaultApprovals int
	// MinSampleSize, KillThreshold, RequiredStreak: retirement policy knobs.
	MinSampleSize  int64
	KillThreshold  float64
	RequiredStreak int
	SweepSamples   int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, errors.New("invalid redis database")
	}

	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Evoloop Allocator"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Environment: getEnv("APP_ENV", "development"),
		},
		Server: ServerConfig{
			Port: getEnv("PORT", "8000"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "evoloop"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET", ""),
		},
		Redis: RedisConfig{
			RedisHost:     getEnv("REDIS_HOST", "localhost"),
			RedisPort:     getEnv("REDIS_PORT", "6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       redisDB,
		},
		Allocator: AllocatorConfig{
			AssignmentTTL:    getDuration("ASSIGNMENT_TTL", 30*24*time.Hour),
			SweepInterval:    getDuration("SWEEP_INTERVAL", 5*time.Minute),
			ReportSamples:    getInt("REPORT_SAMPLES", 2000),
			DefaultApprovals: getInt("DEFAULT_APPROVALS", 5),
			MinSampleSize:    int64(getInt("SWEEP_MIN_SAMPLE_SIZE", 200)),
			KillThreshold:    getFloat("SWEEP_KILL_THRESHOLD", 0.05),
			RequiredStreak:   getInt("SWEEP_REQUIRED_STREAK", 2),
			SweepSamples:     getInt("SWEEP_SAMPLES", 10000),
		},
	}

	if cfg.JWT.SecretKey == "" {
		return nil, errors.New("missing jwt secret")
	}

	if cfg.Database.Password == "" {
		return nil, errors.New("missing database password")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}

	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}

	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}

	return defaultVal
}
