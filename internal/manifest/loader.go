package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"kernelctl/pkg/logging"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Loader reads subsystem manifests and rejects model versions outside the
// supported range.
type Loader struct {
	supported *semver.Constraints
}

// NewLoader creates a loader accepting model versions matching constraint,
// e.g. ">=1.0.0, <2.0.0". An empty constraint accepts any version.
func NewLoader(constraint string) (*Loader, error) {
	l := &Loader{}
	if constraint == "" {
		return l, nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, fmt.Errorf("invalid model version constraint %q: %w", constraint, err)
	}
	l.supported = c
	return l, nil
}

// Load reads every manifest found under paths. A path is either a file or
// a directory whose *.yaml and *.yml files are read in name order.
func (l *Loader) Load(paths ...string) ([]*Manifest, error) {
	files, err := expand(paths)
	if err != nil {
		return nil, err
	}

	var (
		manifests []*Manifest
		errs      []error
	)
	for _, file := range files {
		m, err := l.LoadFile(file)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		manifests = append(manifests, m)
		logging.Debug("Manifest", "Loaded subsystem %s from %s (%d resources)", m.Subsystem, file, len(m.Resources))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	seen := make(map[string]string, len(manifests))
	for _, m := range manifests {
		if prev, dup := seen[m.Subsystem]; dup {
			return nil, fmt.Errorf("subsystem %s is defined in both %s and %s", m.Subsystem, prev, m.Source)
		}
		seen[m.Subsystem] = m.Source
	}

	logging.Info("Manifest", "Loaded %d subsystem manifests", len(manifests))
	return manifests, nil
}

// LoadFile reads a single manifest.
func (l *Loader) LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	m, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	m.Source = path
	return m, nil
}

// Parse decodes and checks a manifest. Unknown fields are rejected.
func (l *Loader) Parse(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty manifest")
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if m.Subsystem == "" {
		return nil, fmt.Errorf("subsystem is required")
	}
	if err := l.checkModelVersion(m.ModelVersion); err != nil {
		return nil, fmt.Errorf("subsystem %s: %w", m.Subsystem, err)
	}
	return &m, nil
}

func (l *Loader) checkModelVersion(v string) error {
	if v == "" {
		return fmt.Errorf("modelVersion is required")
	}
	version, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("invalid modelVersion %q: %w", v, err)
	}
	if l.supported != nil && !l.supported.Check(version) {
		return fmt.Errorf("modelVersion %s is not supported (want %s)", version, l.supported)
	}
	return nil
}

func expand(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest path: %w", err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		var found []string
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(p, pattern))
			if err != nil {
				return nil, fmt.Errorf("failed to list manifests in %s: %w", p, err)
			}
			found = append(found, matches...)
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}
