package roster

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultKey is the roster used for lectures without their own entry.
const DefaultKey = "default"

// Identity is an enrolled student as seen by a lecture roster.
type Identity struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	ExternalID string `json:"studentId" yaml:"student_id"`
}

// Store maps lecture keys to ordered rosters. It is read-only once built.
type Store struct {
	rosters map[string][]Identity
}

// New builds a store from the given rosters. Slices are copied.
func New(rosters map[string][]Identity) *Store {
	s := &Store{rosters: make(map[string][]Identity, len(rosters))}
	for k, v := range rosters {
		s.rosters[k] = append([]Identity(nil), v...)
	}
	return s
}

// Default returns the built-in roster shared by every lecture.
func Default() *Store {
	return New(map[string][]Identity{
		DefaultKey: {
			{ID: "1", Name: "Alex Johnson", ExternalID: "STU-2024-001"},
			{ID: "2", Name: "Maria Garcia", ExternalID: "STU-2024-002"},
			{ID: "3", Name: "David Chen", ExternalID: "STU-2024-003"},
			{ID: "4", Name: "Sarah Williams", ExternalID: "STU-2024-004"},
			{ID: "5", Name: "James Brown", ExternalID: "STU-2024-005"},
			{ID: "6", Name: "Emma Davis", ExternalID: "STU-2024-006"},
			{ID: "7", Name: "Michael Wilson", ExternalID: "STU-2024-007"},
			{ID: "8", Name: "Sophia Martinez", ExternalID: "STU-2024-008"},
		},
	})
}

// Lookup returns a copy of the roster for lectureKey, falling back to the default roster.
func (s *Store) Lookup(lectureKey string) []Identity {
	ids, ok := s.rosters[lectureKey]
	if !ok {
		ids = s.rosters[DefaultKey]
	}
	return append([]Identity(nil), ids...)
}

// Lectures returns the keys with an explicit roster, excluding the default.
func (s *Store) Lectures() []string {
	out := make([]string, 0, len(s.rosters))
	for k := range s.rosters {
		if k != DefaultKey {
			out = append(out, k)
		}
	}
	return out
}

type fileFormat struct {
	Lectures map[string][]Identity `yaml:"lectures"`
}

// LoadFile reads a YAML roster file of the form
//
//	lectures:
//	  default:
//	    - {id: "1", name: Alex Johnson, student_id: STU-2024-001}
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML roster data and checks identities are unique per lecture.
func Parse(data []byte) (*Store, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	if len(f.Lectures) == 0 {
		return nil, fmt.Errorf("parse roster: no lectures defined")
	}
	for lecture, ids := range f.Lectures {
		seen := make(map[string]bool, len(ids))
		for i, id := range ids {
			if strings.TrimSpace(id.ID) == "" || strings.TrimSpace(id.Name) == "" {
				return nil, fmt.Errorf("parse roster: %s[%d]: id and name required", lecture, i)
			}
			if seen[id.ID] {
				return nil, fmt.Errorf("parse roster: %s: duplicate id %q", lecture, id.ID)
			}
			seen[id.ID] = true
		}
	}
	return New(f.Lectures), nil
}
