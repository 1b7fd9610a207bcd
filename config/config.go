// Package config loads host settings from the environment, honoring an
// optional .env file. Script content never lives here.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the host-level settings.
type Config struct {
	ScriptPath string // STORYLOOM_SCRIPT
	SaveDir    string // STORYLOOM_SAVE_DIR
	Seed       int64  // STORYLOOM_SEED, 0 → drawn from the clock
	Lenient    bool   // STORYLOOM_LENIENT_CONDITIONS
}

// Load reads the environment. A missing .env file is not an error.
func Load() Config {
	godotenv.Load()

	return Config{
		ScriptPath: getEnv("STORYLOOM_SCRIPT", "story.yaml"),
		SaveDir:    getEnv("STORYLOOM_SAVE_DIR", "saves"),
		Seed:       getEnvInt64("STORYLOOM_SEED", 0),
		Lenient:    getEnvBool("STORYLOOM_LENIENT_CONDITIONS", false),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}
