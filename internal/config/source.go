package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Source looks up a named property. An empty string means unset.
type Source interface {
	Property(name string) string
}

// EnvSource reads properties from the process environment at lookup time.
type EnvSource struct{}

func (EnvSource) Property(name string) string {
	return os.Getenv(name)
}

// MapSource serves properties from a fixed map.
type MapSource map[string]string

func (m MapSource) Property(name string) string {
	return m[name]
}

// Chain consults each source in order and returns the first non-empty value.
type Chain []Source

func (c Chain) Property(name string) string {
	for _, s := range c {
		if v := s.Property(name); v != "" {
			return v
		}
	}
	return ""
}

// FileSource is a flat YAML mapping of property names to values, e.g.
//
//	AWS_REGION_NAME: us-east-1
//	AWS_S3_BUCKET_NAME: testgrid-reports
//
// The file is re-read whenever its modification time or size changes, so an
// edited file takes effect on the next lookup. If a changed file cannot be
// read or parsed the previous values stay in use.
type FileSource struct {
	path string

	mu      sync.Mutex
	props   map[string]string
	modTime time.Time
	size    int64
}

// LoadFile reads a YAML properties file.
func LoadFile(path string) (*FileSource, error) {
	f := &FileSource{path: path}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FileSource) load() error {
	info, err := os.Stat(f.path)
	if err != nil {
		return fmt.Errorf("config: read properties file: %w", err)
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("config: read properties file: %w", err)
	}

	props := map[string]string{}
	if err := yaml.Unmarshal(data, &props); err != nil {
		return fmt.Errorf("config: parse properties file %s: %w", f.path, err)
	}
	f.props = props
	f.modTime = info.ModTime()
	f.size = info.Size()
	return nil
}

func (f *FileSource) Property(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if info, err := os.Stat(f.path); err == nil && (!info.ModTime().Equal(f.modTime) || info.Size() != f.size) {
		_ = f.load()
	}
	return f.props[name]
}

// NewSource builds the property source for cfg: the properties file, if
// configured, takes precedence over the environment.
func NewSource(cfg Config) (Source, error) {
	if cfg.PropertiesFile == "" {
		return EnvSource{}, nil
	}
	f, err := LoadFile(cfg.PropertiesFile)
	if err != nil {
		return nil, err
	}
	return Chain{f, EnvSource{}}, nil
}
