package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// DefaultEnvFile is the file name LoadEnvTree looks for
const DefaultEnvFile = ".env"

// EnvFilePaths returns every file called name in the working directory and
// its parents, nearest first.
func EnvFilePaths(name string) ([]string, error) {
	if name == "" {
		name = DefaultEnvFile
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	var envFiles []string
	for {
		envPath := filepath.Join(cwd, name)
		if info, err := os.Stat(envPath); err == nil && !info.IsDir() {
			envFiles = append(envFiles, envPath)
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return envFiles, nil
}

// LoadEnvTree loads the env files found by EnvFilePaths into the process
// environment. Variables already set are kept, so nearer files and the real
// environment win. It returns the files it loaded.
func LoadEnvTree(name string) ([]string, error) {
	envFiles, err := EnvFilePaths(name)
	if err != nil {
		return nil, err
	}
	if len(envFiles) == 0 {
		return nil, nil
	}
	if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("failed to load env files: %w", err)
	}
	return envFiles, nil
}
