package service

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Analyst is a roster member eligible for automatic assignment.
type Analyst struct {
	Name    string   `yaml:"name"`
	Role    string   `yaml:"role"`
	Modules []string `yaml:"modules"`
}

type rosterFile struct {
	Analysts []Analyst `yaml:"analysts"`
}

// ParseRoster decodes a YAML roster. Names must be present and unique.
func ParseRoster(data []byte) ([]Analyst, error) {
	var file rosterFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode roster: %w", err)
	}
	seen := make(map[string]struct{}, len(file.Analysts))
	for i := range file.Analysts {
		a := &file.Analysts[i]
		a.Name = strings.TrimSpace(a.Name)
		a.Role = strings.TrimSpace(a.Role)
		if a.Name == "" {
			return nil, fmt.Errorf("roster entry %d has no name", i+1)
		}
		key := strings.ToLower(a.Name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("roster lists %q twice", a.Name)
		}
		seen[key] = struct{}{}
	}
	if len(file.Analysts) == 0 {
		return nil, errors.New("roster has no analysts")
	}
	return file.Analysts, nil
}

// LoadRoster reads the roster at path. An empty path yields no roster.
func LoadRoster(path string) ([]Analyst, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}
	return ParseRoster(data)
}
