package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from the first .env file found.
// Variables already present in the environment take precedence.
func LoadDotEnv(explicit ...string) (string, error) {
	for _, envFile := range envFileCandidates(explicit) {
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			return "", fmt.Errorf("failed to load %s: %w", envFile, err)
		}
		return envFile, nil
	}

	// No .env file is fine, system env vars are used as-is
	return "", nil
}

// envFileCandidates lists .env locations in lookup order
func envFileCandidates(explicit []string) []string {
	var envFiles []string
	for _, f := range explicit {
		if f != "" {
			envFiles = append(envFiles, f)
		}
	}

	envFiles = append(envFiles,
		".env",
		"../.env",
		"../../.env",
	)

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		envFiles = append(envFiles,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	return envFiles
}
