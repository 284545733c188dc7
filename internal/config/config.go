package config

import (
	"os"
	"strconv"
	"time"

	"drinkPassAPI/internal/types/entitlement"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Luma        LumaConfig
	Firestore   FirestoreConfig
	Entitlement EntitlementConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
}

type RedisConfig struct {
	URL string
	// How long a public key stays reserved after a scan before the same
	// guest can be scanned again on any terminal.
	DedupTTL time.Duration
}

type LumaConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type FirestoreConfig struct {
	// Base64-encoded service account JSON; falls back to CredentialsFile.
	CredentialsB64  string
	CredentialsFile string
	Collection      string
}

type EntitlementConfig struct {
	// EventID, when set, rejects scans for any other event.
	EventID string
	Limits  entitlement.Limits
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "3333"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 5*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: int32(getInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getInt("DB_MIN_CONNS", 5)),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			DedupTTL: getDuration("SCAN_DEDUP_TTL", 5*time.Second),
		},
		Luma: LumaConfig{
			BaseURL: getEnv("LUMA_API_URL", "https://public-api.luma.com"),
			APIKey:  getEnv("LUMA_API_KEY", ""),
			Timeout: getDuration("LUMA_TIMEOUT", 5*time.Second),
		},
		Firestore: FirestoreConfig{
			CredentialsB64:  getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", "./serviceAccountKey.json"),
			Collection:      getEnv("FIRESTORE_ENTITLEMENTS_COLLECTION", "entitlements"),
		},
		Entitlement: EntitlementConfig{
			EventID: getEnv("EVENT_ID", ""),
			Limits: entitlement.Limits{
				Drinks: getInt("DRINKS_LIMIT", entitlement.DefaultLimits.Drinks),
				Meals:  getInt("MEALS_LIMIT", entitlement.DefaultLimits.Meals),
			},
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
