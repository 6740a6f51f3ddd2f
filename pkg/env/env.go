package env

import "os"

// Get returns the value of key, or fallback when it is unset or empty.
func Get(key, fallback string) string {
	return First(fallback, key)
}

// First returns the first non-empty value among keys, or fallback.
func First(fallback string, keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return fallback
}
