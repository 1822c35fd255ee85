// Package corpus manages the long-form source documents that back retrieval:
// the YAML manifest describing them, loading and cleaning their text, a
// read-through line cache and filesystem invalidation.
package corpus

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category splits the corpus into primary texts and secondary material.
type Category string

const (
	Primary   Category = "primary"
	Secondary Category = "secondary"
)

// Document is one corpus entry.
type Document struct {
	ID       string   `yaml:"id" json:"id"`
	Title    string   `yaml:"title" json:"title"`
	Category Category `yaml:"category" json:"category"`
	// Path is relative to the manifest's directory unless absolute.
	Path string `yaml:"path" json:"path"`
	// Keywords name the document in queries ("the first book", "workbook").
	Keywords []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	// Watermarks are literal strings stripped from extracted text.
	Watermarks []string `yaml:"watermarks,omitempty" json:"watermarks,omitempty"`
	// Default marks the document read when a direct-read names no document.
	Default bool `yaml:"default,omitempty" json:"default,omitempty"`
}

// Manifest lists the corpus documents.
type Manifest struct {
	Documents []Document `yaml:"documents"`

	dir string
}

// LoadManifest reads and validates a YAML manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolving manifest dir: %w", err)
	}
	m.dir = abs
	return m, nil
}

// ParseManifest decodes and validates manifest YAML. Relative document paths
// resolve against the working directory until SetDir is called.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// SetDir sets the directory relative document paths resolve against.
func (m *Manifest) SetDir(dir string) { m.dir = dir }

func (m *Manifest) validate() error {
	seen := make(map[string]bool, len(m.Documents))
	var errs []error
	for i, d := range m.Documents {
		switch {
		case d.ID == "":
			errs = append(errs, fmt.Errorf("document %d: missing id", i))
		case seen[d.ID]:
			errs = append(errs, fmt.Errorf("document %q: duplicate id", d.ID))
		}
		seen[d.ID] = true
		if d.Path == "" {
			errs = append(errs, fmt.Errorf("document %q: missing path", d.ID))
		}
		if d.Category != Primary && d.Category != Secondary {
			errs = append(errs, fmt.Errorf("document %q: category must be %q or %q, got %q", d.ID, Primary, Secondary, d.Category))
		}
	}
	return errors.Join(errs...)
}

// Get returns the document with the given id.
func (m *Manifest) Get(id string) (Document, bool) {
	for _, d := range m.Documents {
		if d.ID == id {
			return d, true
		}
	}
	return Document{}, false
}

// AbsPath resolves a document's file path.
func (m *Manifest) AbsPath(d Document) string {
	if filepath.IsAbs(d.Path) || m.dir == "" {
		return filepath.Clean(d.Path)
	}
	return filepath.Join(m.dir, d.Path)
}

// Resolve picks the document a query refers to by counting keyword and
// title hits. Without a hit it falls back to the default document, then the
// first primary document, then the first document.
func (m *Manifest) Resolve(query string) (Document, bool) {
	if len(m.Documents) == 0 {
		return Document{}, false
	}
	q := strings.ToLower(query)

	best, bestHits := -1, 0
	for i, d := range m.Documents {
		hits := 0
		if d.Title != "" && strings.Contains(q, strings.ToLower(d.Title)) {
			hits += 2
		}
		for _, kw := range d.Keywords {
			if kw != "" && strings.Contains(q, strings.ToLower(kw)) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = i, hits
		}
	}
	if best >= 0 {
		return m.Documents[best], true
	}

	for _, d := range m.Documents {
		if d.Default {
			return d, true
		}
	}
	for _, d := range m.Documents {
		if d.Category == Primary {
			return d, true
		}
	}
	return m.Documents[0], true
}
