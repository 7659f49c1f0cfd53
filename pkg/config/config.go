package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                    string
	Env                     string
	LogLevel                string
	LogFormat               string
	MongoURI                string
	MongoDatabase           string
	PostgresURL             string
	RedisURL                string
	RedisChannel            string
	FirebaseCredentialsPath string
	JWTSecret               string
	AuthMode                string
	SMTPAddr                string
	SMTPUsername            string
	SMTPPassword            string
	SMTPFrom                string
	ResolveMethod           string
	Domain                  string
}

// Load reads the configuration from the environment, after loading .env
// when one exists.
func Load() *Config {
	// a missing .env is fine, the environment may already be set
	_ = godotenv.Load()

	return &Config{
		Port:                    getEnv("PORT", "8080"),
		Env:                     getEnv("ENV", "development"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogFormat:               getEnv("LOG_FORMAT", "console"),
		MongoURI:                getEnv("MONGO_URI", ""),
		MongoDatabase:           getEnv("MONGO_DATABASE", "socialmedia"),
		PostgresURL:             getEnv("POSTGRES_URL", ""),
		RedisURL:                getEnv("REDIS_URL", ""),
		RedisChannel:            getEnv("REDIS_CHANNEL", "events"),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		JWTSecret:               getEnv("JWT_SECRET", "supersecretjwtkey"),
		AuthMode:                getEnv("AUTH_MODE", "jwt"),
		SMTPAddr:                getEnv("SMTP_ADDR", ""),
		SMTPUsername:            getEnv("SMTP_USERNAME", ""),
		SMTPPassword:            getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:                getEnv("SMTP_FROM", "notifications@localhost"),
		ResolveMethod:           getEnv("RESOLVE_METHOD", "DEMAND_SUBSCRIPTION"),
		Domain:                  getEnv("DOMAIN", "climbing"),
	}
}

// DeliveryEnabled reports whether emails are actually sent.
func (c *Config) DeliveryEnabled() bool {
	return c.Env == "production"
}

// InMemory reports whether the server runs without MongoDB.
func (c *Config) InMemory() bool {
	return c.MongoURI == "" && c.Env != "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
