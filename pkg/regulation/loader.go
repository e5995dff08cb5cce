package regulation

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// DefaultVersion is the version of the built-in catalog.
const DefaultVersion = "1.0.0"

// minSupported is the oldest catalog format this build understands.
var minSupported = semver.MustParse("1.0.0")

// catalogFile is the on-disk YAML layout.
type catalogFile struct {
	Version string `yaml:"version"`
	Zones   []Rule `yaml:"zones"`
}

// LoadFile reads a YAML catalog from path.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog %q: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load catalog %q: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	if f.Version == "" {
		return nil, fmt.Errorf("catalog version is required")
	}
	v, err := semver.NewVersion(f.Version)
	if err != nil {
		return nil, fmt.Errorf("catalog version %q: %w", f.Version, err)
	}
	if v.LessThan(minSupported) {
		return nil, fmt.Errorf("catalog version %s is older than supported %s", v, minSupported)
	}

	return NewCatalog(v.String(), f.Zones)
}
