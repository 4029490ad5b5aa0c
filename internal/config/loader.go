package config

import "fmt"

// LoadFromEnv reads the process environment, after the dotenv files in dev
// builds.
func LoadFromEnv() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}
	return Load(FromEnviron())
}
