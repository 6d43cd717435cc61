package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Keycloak  KeycloakConfig
	RateLimit RateLimitConfig
	LogLevel  string
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// MongoDBConfig selects the catalog collection. An empty URI runs the
// service on the in-memory store.
type MongoDBConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

// KeycloakConfig enables bearer-token checks on write routes when URL and
// Realm are set.
type KeycloakConfig struct {
	URL      string
	Realm    string
	ClientID string
	// InsecureTokens accepts unsigned token claims; integration runs only.
	InsecureTokens bool
}

// Issuer returns the realm issuer URL, or "" when Keycloak is not configured.
func (k KeycloakConfig) Issuer() string {
	if k.URL == "" || k.Realm == "" {
		return ""
	}
	return strings.TrimSuffix(k.URL, "/") + "/realms/" + k.Realm
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
	Window  time.Duration
}

// IsProduction reports whether error responses must hide their causes.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

// Address is the listen address of the HTTP server.
func (c *Config) Address() string {
	return c.Server.Host + ":" + c.Server.Port
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5001")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("MONGODB_DATABASE", "wt2")
	viper.SetDefault("MONGODB_COLLECTION", "titles")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("KEYCLOAK_CLIENT_ID", "catalog")
	viper.SetDefault("RATE_LIMIT_ENABLED", true)
	viper.SetDefault("RATE_LIMIT_RPS", 10)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	viper.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:        os.Getenv("MONGODB_URI"),
			Database:   viper.GetString("MONGODB_DATABASE"),
			Collection: viper.GetString("MONGODB_COLLECTION"),
			Timeout:    time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Keycloak: KeycloakConfig{
			URL:            viper.GetString("KEYCLOAK_URL"),
			Realm:          viper.GetString("KEYCLOAK_REALM"),
			ClientID:       viper.GetString("KEYCLOAK_CLIENT_ID"),
			InsecureTokens: viper.GetBool("KEYCLOAK_INSECURE_TOKENS"),
		},
		RateLimit: RateLimitConfig{
			Enabled: viper.GetBool("RATE_LIMIT_ENABLED"),
			RPS:     viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:   viper.GetInt("RATE_LIMIT_BURST"),
			Window:  time.Duration(viper.GetInt("RATE_LIMIT_WINDOW_SECONDS")) * time.Second,
		},
		LogLevel: viper.GetString("LOG_LEVEL"),
	}
	return cfg, nil
}
