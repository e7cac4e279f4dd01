package config

import "os"

type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Backend selects the gateway implementation: firestore, postgres,
	// mongo, or memory.
	Backend string

	FirebaseCredentialsPath string
	FirestoreProjectID      string

	PostgresURL string
	RedisAddr   string

	MongoURI string
	MongoDB  string

	PushEnabled bool
}

func Load() *Config {
	return &Config{
		Port:                    getEnv("PORT", "8080"),
		Env:                     getEnv("ENV", "development"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		Backend:                 getEnv("BACKEND", "memory"),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		FirestoreProjectID:      getEnv("FIRESTORE_PROJECT_ID", ""),
		PostgresURL:             getEnv("POSTGRES_URL", "postgres://localhost:5432/musiccave"),
		RedisAddr:               getEnv("REDIS_ADDR", "localhost:6379"),
		MongoURI:                getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:                 getEnv("MONGO_DB", "musiccave"),
		PushEnabled:             getEnv("PUSH_ENABLED", "true") == "true",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
