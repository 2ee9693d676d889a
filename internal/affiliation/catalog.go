// Package affiliation normalizes free-form faculty and program names against
// a fixed catalog.
package affiliation

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yml
var embeddedCatalog []byte

// Program is a degree program offered by a faculty.
type Program struct {
	Name    string   `yaml:"name" json:"name"`
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// Faculty groups programs.
type Faculty struct {
	Name     string    `yaml:"name" json:"name"`
	Aliases  []string  `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Programs []Program `yaml:"programs" json:"programs"`
}

// Catalog resolves affiliations to canonical names. It is read-only after
// Parse and safe for concurrent use.
type Catalog struct {
	Faculties []Faculty `yaml:"faculties" json:"faculties"`

	canonical map[string]string
	faculties map[string]*Faculty
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(embeddedCatalog)
		if err != nil {
			panic(fmt.Sprintf("embedded affiliation catalog: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Load reads a catalog file, or returns Default when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read affiliation catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog and indexes every name and alias.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode affiliation catalog: %w", err)
	}
	c.canonical = make(map[string]string)
	c.faculties = make(map[string]*Faculty)

	for i := range c.Faculties {
		f := &c.Faculties[i]
		if err := c.index(f.Name, f.Name, f.Aliases); err != nil {
			return nil, err
		}
		c.faculties[Key(f.Name)] = f
		for _, p := range f.Programs {
			if err := c.index(p.Name, p.Name, p.Aliases); err != nil {
				return nil, err
			}
		}
	}
	return &c, nil
}

func (c *Catalog) index(name, canonical string, aliases []string) error {
	for _, raw := range append([]string{name}, aliases...) {
		k := Key(raw)
		if k == "" {
			return fmt.Errorf("affiliation catalog: empty name under %q", canonical)
		}
		if prev, ok := c.canonical[k]; ok && prev != canonical {
			return fmt.Errorf("affiliation catalog: %q maps to both %q and %q", raw, prev, canonical)
		}
		c.canonical[k] = canonical
	}
	return nil
}

// Normalize collapses whitespace and resolves raw to its catalog name.
// Unknown values are title-cased. Empty input stays empty.
func (c *Catalog) Normalize(raw string) string {
	collapsed := strings.Join(strings.Fields(raw), " ")
	if collapsed == "" {
		return ""
	}
	if c != nil {
		if name, ok := c.canonical[Key(collapsed)]; ok {
			return name
		}
	}
	return cases.Title(language.Und).String(collapsed)
}

// Expand normalizes viewer interests. A faculty expands to itself plus all of
// its programs. Duplicates are removed, order is preserved.
func (c *Catalog) Expand(interests []string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}

	for _, raw := range interests {
		name := c.Normalize(raw)
		add(name)
		if c == nil {
			continue
		}
		if f, ok := c.faculties[Key(name)]; ok {
			for _, p := range f.Programs {
				add(p.Name)
			}
		}
	}
	return out
}

// FacultyOf returns the faculty a program belongs to.
func (c *Catalog) FacultyOf(program string) (string, bool) {
	if c == nil {
		return "", false
	}
	k := Key(program)
	for _, f := range c.Faculties {
		for _, p := range f.Programs {
			if Key(p.Name) == k {
				return f.Name, true
			}
		}
	}
	return "", false
}

// Programs lists every program name in catalog order.
func (c *Catalog) Programs() []string {
	if c == nil {
		return nil
	}
	var out []string
	for _, f := range c.Faculties {
		for _, p := range f.Programs {
			out = append(out, p.Name)
		}
	}
	return out
}

// Key folds s for comparison: whitespace collapsed, accents stripped and
// case folded.
func Key(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return cases.Fold().String(strings.Join(strings.Fields(stripped), " "))
}
