package config

import (
	"os"
	"testing"
)

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal string
		expected   string
	}{
		{"uses env value", "TEST_VAR_1", "hello", "default", "hello"},
		{"uses default when empty", "TEST_VAR_2", "", "default", "default"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnvOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, result)
			}
		})
	}
}

func TestGetEnvAsIntOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal int
		expected   int
	}{
		{"parses integer", "TEST_INT_1", "4", 3, 4},
		{"uses default for empty", "TEST_INT_2", "", 3, 3},
		{"uses default for non-numeric", "TEST_INT_3", "abc", 3, 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnvAsIntOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, result)
			}
		})
	}
}

func TestLoadDefaultsWAStoreToDatabaseURL(t *testing.T) {
	os.Setenv("API_KEY", "rahasia")
	os.Setenv("DATABASE_URL", "postgres://localhost/wasender")
	os.Setenv("REDIS_URL", "redis://localhost:6379")
	defer func() {
		os.Unsetenv("API_KEY")
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("REDIS_URL")
	}()

	cfg := Load()
	if cfg.WAStoreURL != cfg.DatabaseURL {
		t.Errorf("Expected WA_STORE_URL to default to DATABASE_URL, got %q", cfg.WAStoreURL)
	}
	if cfg.QueueBackend != "redis" {
		t.Errorf("Expected default queue backend redis, got %q", cfg.QueueBackend)
	}
}
