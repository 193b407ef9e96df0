package logstore

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ManifestName is the manifest file kept next to CSV logs.
const ManifestName = "manifest.yaml"

// Schema versions of the log layout.
const (
	SchemaUnified = 1
	SchemaSplit   = 2
)

// Manifest records which layout last wrote a log directory.
type Manifest struct {
	SchemaVersion int       `yaml:"schema_version"`
	Layout        string    `yaml:"layout"`
	Partitions    []string  `yaml:"partitions"`
	UpdatedAt     time.Time `yaml:"updated_at"`
}

// LoadManifest loads the manifest from dir. If the file is missing, returns an empty manifest.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{}, nil
		}
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "parse manifest")
	}

	return &m, nil
}

// SaveManifest writes the manifest into dir.
func SaveManifest(dir string, m *Manifest) error {
	if m == nil {
		return nil
	}
	m.UpdatedAt = time.Now().UTC()
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, ManifestName), data, 0o644)
}
