package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"partner-sync-go/pkg/logger"
)

const (
	dotenvFilename = ".env"
	dotenvPathEnv  = "DOTENV_FILE"
	moduleMarker   = "go.mod"
)

type dotenvStats struct {
	path    string
	loaded  int
	skipped int
}

// loadDotEnv copies variables from a .env file into the process environment
// without overriding anything already set. DOTENV_FILE names the file
// explicitly; otherwise the working directory and its parents are searched,
// stopping at the module root.
func loadDotEnv(log logger.Logger) error {
	path := os.Getenv(dotenvPathEnv)
	if path == "" {
		found, err := findDotEnv()
		if err != nil {
			return err
		}
		path = found
	}

	stats, err := applyDotEnv(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	log.Info("config.dotenv: loaded variables", "count", stats.loaded, "path", stats.path)
	if stats.skipped > 0 {
		log.Info("config.dotenv: kept variables already set in env", "count", stats.skipped)
	}
	return nil
}

func findDotEnv() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, dotenvFilename)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		if _, err := os.Stat(filepath.Join(dir, moduleMarker)); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", os.ErrNotExist
}

func applyDotEnv(path string) (dotenvStats, error) {
	stats := dotenvStats{path: path}

	file, err := os.Open(path)
	if err != nil {
		return stats, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

		key, value, err := parseAssignment(line)
		if err != nil {
			return stats, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if _, exists := os.LookupEnv(key); exists {
			stats.skipped++
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return stats, err
		}
		stats.loaded++
	}

	return stats, scanner.Err()
}

var errMalformedLine = errors.New("expected KEY=value")

func parseAssignment(line string) (string, string, error) {
	key, value, ok := strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" || strings.ContainsAny(key, " \t") {
		return "", "", errMalformedLine
	}

	value = strings.TrimSpace(value)
	if len(value) >= 2 {
		switch quote := value[0]; {
		case quote == '"' && value[len(value)-1] == '"':
			unquoted, err := strconv.Unquote(value)
			if err != nil {
				return "", "", fmt.Errorf("%s: %w", key, err)
			}
			return key, unquoted, nil
		case quote == '\'' && value[len(value)-1] == '\'':
			return key, value[1 : len(value)-1], nil
		}
	}

	return key, stripInlineComment(value), nil
}

// stripInlineComment drops a trailing " # comment" from an unquoted value.
func stripInlineComment(value string) string {
	for i := 1; i < len(value); i++ {
		if value[i] == '#' && (value[i-1] == ' ' || value[i-1] == '\t') {
			return strings.TrimSpace(value[:i-1])
		}
	}
	return value
}
