// Package cache holds the demo lookup table of precomputed extraction
// results. A Cache is built once at startup and is read-only afterwards,
// so concurrent lookups need no locking.
package cache

import (
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"forge-endpointify/internal/models"
	"forge-endpointify/internal/urlnorm"
)

//go:embed demo_cache.yaml
var demoSeed []byte

// Entry is one precomputed result.
type Entry struct {
	URL        string             `yaml:"url"`
	Confidence float64            `yaml:"confidence"`
	Notes      []string           `yaml:"notes"`
	Components []models.Component `yaml:"components"`
}

func (e Entry) clone() Entry {
	e.Notes = append([]string(nil), e.Notes...)
	e.Components = models.CloneComponents(e.Components)
	return e
}

type seedFile struct {
	Entries []Entry `yaml:"entries"`
}

type Cache struct {
	entries map[string]Entry
}

// New builds a cache from entries, keying each by its normalized URL.
// Later entries replace earlier ones with the same key.
func New(entries ...Entry) (*Cache, error) {
	c := &Cache{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		key, err := urlnorm.Normalize(e.URL)
		if err != nil {
			return nil, fmt.Errorf("cache: entry %q: %w", e.URL, err)
		}
		for _, comp := range e.Components {
			if !comp.Type.Valid() {
				return nil, fmt.Errorf("cache: entry %q: component %q has invalid type %q", e.URL, comp.ID, comp.Type)
			}
		}
		c.entries[key] = e.clone()
	}
	return c, nil
}

// Decode reads entries from a YAML seed document.
func Decode(r io.Reader) ([]Entry, error) {
	var f seedFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("cache: decode seed: %w", err)
	}
	return f.Entries, nil
}

// Demo returns the embedded demo entries.
func Demo() []Entry {
	var f seedFile
	if err := yaml.Unmarshal(demoSeed, &f); err != nil {
		panic(fmt.Sprintf("cache: embedded seed: %v", err))
	}
	return f.Entries
}

// Load builds the demo cache, adding entries from extraPath when it is set.
func Load(extraPath string) (*Cache, error) {
	entries := Demo()
	if extraPath != "" {
		f, err := os.Open(extraPath)
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		defer f.Close()
		extra, err := Decode(f)
		if err != nil {
			return nil, err
		}
		entries = append(entries, extra...)
	}
	return New(entries...)
}

// Lookup returns a copy of the entry stored for an already-normalized URL.
func (c *Cache) Lookup(normalized string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	e, ok := c.entries[normalized]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}
