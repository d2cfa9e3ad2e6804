package species

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

//go:embed synonyms.json
var defaultSynonymsJSON []byte

// Synonyms maps species aliases onto a canonical category.
// It is immutable once created.
type Synonyms struct {
	alias map[string]string // lower case alias -> canonical name
}

// DefaultSynonyms returns the built-in mapping, which folds the cat-like species
// that the classifier confuses with leopards into "Leopard".
func DefaultSynonyms() *Synonyms {
	s, err := ParseSynonyms(defaultSynonymsJSON)
	if err != nil {
		panic(err)
	}
	return s
}

// LoadSynonyms reads a JSON file of the form {"Canonical": ["alias 1", "alias 2"]}
func LoadSynonyms(filename string) (*Synonyms, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	s, err := ParseSynonyms(raw)
	if err != nil {
		return nil, fmt.Errorf("Invalid synonyms file %v: %w", filename, err)
	}
	return s, nil
}

func ParseSynonyms(raw []byte) (*Synonyms, error) {
	groups := map[string][]string{}
	if err := json.Unmarshal(raw, &groups); err != nil {
		return nil, err
	}
	s := &Synonyms{
		alias: map[string]string{},
	}
	for canonical, aliases := range groups {
		canonical = strings.TrimSpace(canonical)
		if canonical == "" {
			return nil, fmt.Errorf("Empty canonical species name")
		}
		for _, a := range aliases {
			key := strings.ToLower(strings.TrimSpace(a))
			if prev, ok := s.alias[key]; ok && prev != canonical {
				return nil, fmt.Errorf("Alias '%v' maps to both '%v' and '%v'", a, prev, canonical)
			}
			s.alias[key] = canonical
		}
	}
	return s, nil
}

// Lookup finds the canonical name for a species (case insensitive)
func (s *Synonyms) Lookup(name string) (string, bool) {
	c, ok := s.alias[strings.ToLower(name)]
	return c, ok
}

// Number of aliases
func (s *Synonyms) Len() int {
	return len(s.alias)
}
