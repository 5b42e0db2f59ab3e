package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/studiowebux/reviewload/internal/loadgen"
	"gopkg.in/yaml.v3"
)

const (
	// FilePermissions is the default permission mode for regular files (read/write for owner, read for others)
	FilePermissions = 0644
	// DirPermissions is the default permission mode for directories (rwxr-xr-x)
	DirPermissions = 0755
)

var (
	// ConfigDir is the global data directory (~/.reviewload)
	ConfigDir string

	// ScenariosDir holds saved scenario files
	ScenariosDir string

	// DatabasePath is the SQLite database file for run reports
	DatabasePath string

	// LogFile receives logs when the dashboard owns the terminal
	LogFile string
)

// Initialize sets up the data directories.
// It creates ~/.reviewload/ (or $REVIEWLOAD_HOME) if it doesn't exist.
func Initialize() error {
	dir := os.Getenv("REVIEWLOAD_HOME")
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".reviewload")
	}
	return InitializeAt(dir)
}

// InitializeAt sets the global paths below dir and creates the directories
func InitializeAt(dir string) error {
	ConfigDir = dir
	ScenariosDir = filepath.Join(ConfigDir, "scenarios")
	DatabasePath = filepath.Join(ConfigDir, "reviewload.db")
	LogFile = filepath.Join(ConfigDir, "reviewload.log")

	for _, d := range []string{ConfigDir, ScenariosDir} {
		if err := os.MkdirAll(d, DirPermissions); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}
	return nil
}

// ResolveScenarioPath finds a scenario file. Names without a directory are
// also looked up in ScenariosDir, and the .yaml extension is optional.
func ResolveScenarioPath(name string) (string, error) {
	candidates := []string{name}
	if filepath.Ext(name) == "" {
		candidates = append(candidates, name+".yaml", name+".yml")
	}
	if ScenariosDir != "" && !strings.ContainsRune(name, filepath.Separator) {
		for _, c := range append([]string(nil), candidates...) {
			candidates = append(candidates, filepath.Join(ScenariosDir, c))
		}
	}

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("scenario file not found: %s", name)
}

// LoadScenario reads a YAML scenario file over the default configuration
func LoadScenario(path string) (*loadgen.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	cfg, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseScenario decodes YAML scenario content. Unknown keys are rejected so
// that typos do not silently fall back to defaults.
func ParseScenario(data []byte) (*loadgen.Config, error) {
	cfg := loadgen.DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return cfg, nil
}

// ScenarioSavePath maps a bare scenario name into ScenariosDir and adds the
// .yaml extension when missing. Paths with a directory are kept as given.
func ScenarioSavePath(name string) string {
	if filepath.Ext(name) == "" {
		name += ".yaml"
	}
	if ScenariosDir != "" && !strings.ContainsRune(name, filepath.Separator) {
		return filepath.Join(ScenariosDir, name)
	}
	return name
}

// WriteScenario saves cfg as YAML
func WriteScenario(path string, cfg *loadgen.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode scenario: %w", err)
	}
	if err := os.WriteFile(path, data, FilePermissions); err != nil {
		return fmt.Errorf("failed to write scenario: %w", err)
	}
	return nil
}
