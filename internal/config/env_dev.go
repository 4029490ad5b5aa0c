//go:build dev

package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// loadDotEnv reads ENV_FILE (default .env) without overriding the process
// environment, then applies .env.local on top when present.
func loadDotEnv() error {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := loadIfExists(path, godotenv.Load); err != nil {
		return err
	}
	return loadIfExists(".env.local", godotenv.Overload)
}

func loadIfExists(path string, load func(...string) error) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return load(path)
}
