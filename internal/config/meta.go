package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/jlevy/tbd/internal/types"
)

// Dataset format marker, stored at the data root.
const (
	MetaFile      = "meta.yml"
	Format        = "tbd"
	FormatVersion = "v1.0.0"
)

// Meta identifies the on-disk dataset format.
type Meta struct {
	Format        string `yaml:"format"`
	FormatVersion string `yaml:"format_version"`
}

// WriteMeta stamps a fresh data root.
func WriteMeta(root string) error {
	data, err := yaml.Marshal(Meta{Format: Format, FormatVersion: FormatVersion})
	if err != nil {
		return fmt.Errorf("encoding meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, MetaFile), data, 0o644); err != nil {
		return fmt.Errorf("writing meta: %w", err)
	}
	return nil
}

// CheckMeta verifies the data root was written by a compatible version.
// A different major version means the layout may have changed shape, so the
// tool refuses to touch it.
func CheckMeta(root string) error {
	data, err := os.ReadFile(filepath.Join(root, MetaFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: no dataset at %s (run tbd init)", types.ErrNotFound, root)
		}
		return fmt.Errorf("reading meta: %w", err)
	}
	var m Meta
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("%w: malformed meta.yml: %v", types.ErrIntegrity, err)
	}
	if m.Format != Format {
		return fmt.Errorf("%w: dataset format %q is not %q", types.ErrIntegrity, m.Format, Format)
	}
	if !semver.IsValid(m.FormatVersion) {
		return fmt.Errorf("%w: malformed format_version %q", types.ErrIntegrity, m.FormatVersion)
	}
	if semver.Major(m.FormatVersion) != semver.Major(FormatVersion) {
		return fmt.Errorf("%w: dataset format %s is incompatible with this build (%s)",
			types.ErrIntegrity, m.FormatVersion, FormatVersion)
	}
	return nil
}
