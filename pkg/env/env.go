package env

import "os"

// Get reads an environment variable, falling back when it is unset or empty.
// Empty values count as unset so a blank override cannot blank out a default.
func Get(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
