package app

import (
	"os"
	"path/filepath"
	"strings"
)

// ConfigDir returns ~/.config/claude-flow/ on all platforms.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "claude-flow"), nil
}

// EnsureConfigDir creates the config directory and default config.yaml if
// missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return os.WriteFile(configFile, []byte(defaultConfig), 0600)
	}
	return nil
}

const defaultConfig = `# claude-flow configuration
# Run: claude-flow --help

# Optional: override the SQLite persistence path.
# Can also be set via CLAUDE_FLOW_DB_PATH or --db-path.
# db_path: ~/.config/claude-flow/flow.db

# Optional: where agents write their status documents.
# status_dir: ./.claude-flow/swarm-status
`

// dbPathOverride is set by the CLI's --db-path flag.
var dbPathOverride string

// SetDBPathOverride wires the CLI flag into path resolution.
func SetDBPathOverride(path string) {
	dbPathOverride = path
}

// GetDBPath resolves the persistence database location: flag override,
// then CLAUDE_FLOW_DB_PATH, then db_path from config.yaml (a leading "~/"
// expands to the home directory), then the config dir default.
func GetDBPath() (string, error) {
	if dbPathOverride != "" {
		return dbPathOverride, nil
	}
	if env := os.Getenv("CLAUDE_FLOW_DB_PATH"); env != "" {
		return env, nil
	}
	if s, err := LoadSettings(); err == nil && s.DBPath != "" {
		if !strings.HasPrefix(s.DBPath, "~/") {
			return s.DBPath, nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, s.DBPath[2:]), nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "flow.db"), nil
}

// DataDir returns the project-local runtime directory.
func DataDir() string {
	return ".claude-flow"
}
