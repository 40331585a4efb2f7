// Package config provides configuration helpers for passportcam commands.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Load reads a .env file if one is present. Missing files are not an
// error; explicit environment variables always win.
func Load() {
	_ = godotenv.Load()
}

// Get returns the value of an environment variable, or def if unset.
func Get(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetInt returns an integer environment variable, or def if unset or
// not a number.
func GetInt(key string, def int) int {
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

// GetFloat returns a float environment variable, or def if unset or
// not a number.
func GetFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// GetBool returns a boolean environment variable, or def if unset.
// Accepts the forms strconv.ParseBool accepts ("1", "true", ...).
func GetBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
