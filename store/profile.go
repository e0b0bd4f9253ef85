package store

// This file contains storage profiles: named backend configurations loaded from a YAML
// or JSON file. There is no process-wide active profile; callers resolve a profile and
// pass it to Open.

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"sigs.k8s.io/yaml"
)

// Type selects a storage backend.
type Type string

const (
	TypeMemory Type = "memory"
	TypeJSON   Type = "json"
	TypeDir    Type = "dir"
)

// DefaultProfileName is used when no profile is requested.
const DefaultProfileName = "default"

// Profile is a named storage configuration.
type Profile struct {
	Name string `json:"-"`
	Type Type   `json:"type"`
	Path string `json:"path,omitempty"`
}

// Profiles maps profile names to profiles.
type Profiles map[string]Profile

type profilesFile struct {
	Profiles Profiles `json:"profiles"`
}

// DefaultDir is where profiles and default stores live, ~/.testinsight.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".testinsight"
	}
	return filepath.Join(home, ".testinsight")
}

// DefaultProfilesPath is the profiles file used when none is configured.
func DefaultProfilesPath() string {
	return filepath.Join(DefaultDir(), "profiles.yaml")
}

// DefaultProfile returns a JSON-file profile stored at ~/.testinsight/<name>.json.
func DefaultProfile(name string) Profile {
	return Profile{
		Name: name,
		Type: TypeJSON,
		Path: filepath.Join(DefaultDir(), name+".json"),
	}
}

// Validate checks the backend type and that file backends have a path.
func (p Profile) Validate() error {
	switch p.Type {
	case TypeMemory:
		return nil
	case TypeJSON, TypeDir:
		if p.Path == "" {
			return fmt.Errorf("profile %q: %s storage needs a path", p.Name, p.Type)
		}
		return nil
	default:
		return fmt.Errorf("profile %q: unknown storage type %q", p.Name, p.Type)
	}
}

// LoadProfiles reads a profiles file. A missing file yields no profiles.
func LoadProfiles(path string) (Profiles, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Profiles{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles file: %w", err)
	}

	var f profilesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse profiles file %s: %w", path, err)
	}

	profiles := Profiles{}
	for name, p := range f.Profiles {
		p.Name = name
		p.Path = expandHome(p.Path)
		if err := p.Validate(); err != nil {
			return nil, err
		}
		profiles[name] = p
	}
	return profiles, nil
}

// SaveProfiles writes profiles to path as YAML.
func SaveProfiles(path string, profiles Profiles) error {
	data, err := yaml.Marshal(profilesFile{Profiles: profiles})
	if err != nil {
		return fmt.Errorf("failed to encode profiles: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create profiles directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write profiles file: %w", err)
	}
	return nil
}

// Get returns the named profile. The default profile is always available.
func (p Profiles) Get(name string) (Profile, error) {
	if name == "" {
		name = DefaultProfileName
	}
	if profile, ok := p[name]; ok {
		return profile, nil
	}
	if name == DefaultProfileName {
		return DefaultProfile(name), nil
	}
	return Profile{}, fmt.Errorf("profile %q not found (available: %s)", name, strings.Join(p.Names(), ", "))
}

// Names returns profile names in sorted order.
func (p Profiles) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open constructs the backend described by profile.
func Open(logger zerolog.Logger, profile Profile) (Store, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	logger = logger.With().Str("profile", profile.Name).Logger()

	switch profile.Type {
	case TypeMemory:
		return NewMemoryStore(), nil
	case TypeDir:
		return NewDirStore(logger, expandHome(profile.Path)), nil
	default:
		return NewJSONStore(logger, expandHome(profile.Path)), nil
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
