// Package config loads tool settings from .tbd/config.yaml, environment
// variables, and defaults, and validates the on-disk dataset format.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/jlevy/tbd/internal/types"
)

// Well-known names and defaults.
const (
	DirName   = ".tbd"
	FileName  = "config.yaml"
	EnvPrefix = "TBD"

	DefaultSyncBranch = "tbd-sync"
	DefaultRemote     = "origin"
	DefaultPrefix     = "tbd"
)

// Settings is the validated configuration handed to the rest of the tool.
type Settings struct {
	SyncBranch string
	Remote     string
	Prefix     string
	ConfigPath string // file it came from, empty when defaults/env only
}

// Load reads configuration starting from dir: defaults, then the nearest
// .tbd/config.yaml walking up toward the filesystem root, then TBD_*
// environment overrides (TBD_SYNC_BRANCH, TBD_SYNC_REMOTE,
// TBD_DISPLAY_PREFIX).
func Load(dir string) (*Settings, error) {
	v := viper.New()
	v.SetDefault("sync.branch", DefaultSyncBranch)
	v.SetDefault("sync.remote", DefaultRemote)
	v.SetDefault("display.prefix", DefaultPrefix)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := findConfig(dir)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	s := &Settings{
		SyncBranch: v.GetString("sync.branch"),
		Remote:     v.GetString("sync.remote"),
		Prefix:     strings.ToLower(v.GetString("display.prefix")),
		ConfigPath: path,
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) validate() error {
	if s.SyncBranch == "" {
		return fmt.Errorf("%w: sync.branch must not be empty", types.ErrValidation)
	}
	if s.Prefix == "" {
		return fmt.Errorf("%w: display.prefix must not be empty", types.ErrValidation)
	}
	for _, c := range s.Prefix {
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9') {
			return fmt.Errorf("%w: display.prefix %q must be lowercase alphanumeric", types.ErrValidation, s.Prefix)
		}
	}
	return nil
}

func findConfig(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, DirName, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// WriteDefault creates .tbd/config.yaml under dir with the default
// settings spelled out, so users have something to edit.
func WriteDefault(dir string) (string, error) {
	cfgDir := filepath.Join(dir, DirName)
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", cfgDir, err)
	}
	path := filepath.Join(cfgDir, FileName)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	content := fmt.Sprintf("sync:\n  branch: %s\n  remote: %s\ndisplay:\n  prefix: %s\n",
		DefaultSyncBranch, DefaultRemote, DefaultPrefix)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
