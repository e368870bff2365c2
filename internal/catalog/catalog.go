// Package catalog is the static registry of dataset schemas.
package catalog

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ZanzyTHEbar/dataplan-genkit"
	"gopkg.in/yaml.v3"
)

//go:embed schemas/*.yaml
var builtinSchemas embed.FS

// Catalog maps dataset names to schema documents. Registration happens at
// construction time; lookups are safe for concurrent use.
type Catalog struct {
	mu   sync.RWMutex
	docs map[string]*dataplan.SchemaDocument
}

// New creates a catalog from the given documents.
func New(docs ...*dataplan.SchemaDocument) (*Catalog, error) {
	c := &Catalog{docs: make(map[string]*dataplan.SchemaDocument)}
	for _, d := range docs {
		if err := c.Register(d); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Builtin returns a catalog holding the schemas shipped with the module.
func Builtin() (*Catalog, error) {
	c, _ := New()
	entries, err := fs.ReadDir(builtinSchemas, "schemas")
	if err != nil {
		return nil, dataplan.NewConfigurationError("read builtin schemas", err)
	}
	for _, e := range entries {
		data, err := builtinSchemas.ReadFile("schemas/" + e.Name())
		if err != nil {
			return nil, dataplan.NewConfigurationError("read builtin schema "+e.Name(), err)
		}
		if err := c.LoadYAML(data); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register adds a document, replacing any previous document for the dataset.
func (c *Catalog) Register(doc *dataplan.SchemaDocument) error {
	if doc == nil {
		return dataplan.NewConfigurationError("nil schema document", nil)
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[doc.Dataset] = doc.Clone()
	return nil
}

// LoadYAML registers every document in a YAML (or JSON) stream. A stream may
// hold one document, a list of documents, or several YAML documents.
func (c *Catalog) LoadYAML(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var node yaml.Node
		if err := dec.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return dataplan.NewConfigurationError("parse schema document", err)
		}
		docs, err := decodeNode(&node)
		if err != nil {
			return err
		}
		for _, d := range docs {
			if err := c.Register(d); err != nil {
				return err
			}
		}
	}
}

func decodeNode(node *yaml.Node) ([]*dataplan.SchemaDocument, error) {
	root := node
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind == yaml.SequenceNode {
		var docs []*dataplan.SchemaDocument
		if err := root.Decode(&docs); err != nil {
			return nil, dataplan.NewConfigurationError("decode schema documents", err)
		}
		return docs, nil
	}
	var doc dataplan.SchemaDocument
	if err := root.Decode(&doc); err != nil {
		return nil, dataplan.NewConfigurationError("decode schema document", err)
	}
	return []*dataplan.SchemaDocument{&doc}, nil
}

// LoadFile registers the documents held in a file, or in every .yaml, .yml
// and .json file of a directory.
func (c *Catalog) LoadFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return dataplan.NewConfigurationError("stat schema path", err)
	}
	paths := []string{path}
	if info.IsDir() {
		paths = nil
		entries, err := os.ReadDir(path)
		if err != nil {
			return dataplan.NewConfigurationError("read schema directory", err)
		}
		for _, e := range entries {
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".yaml", ".yml", ".json":
				paths = append(paths, filepath.Join(path, e.Name()))
			}
		}
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return dataplan.NewConfigurationError("read schema file "+p, err)
		}
		if err := c.LoadYAML(data); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// GetSchema returns a copy of the dataset's schema document.
func (c *Catalog) GetSchema(dataset string) (*dataplan.SchemaDocument, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[dataset]
	if !ok {
		return nil, dataplan.NewUnknownDatasetError(dataset)
	}
	return doc.Clone(), nil
}

// PlannerContext renders the dataset's schema as indented JSON for inclusion
// in a planning prompt.
func (c *Catalog) PlannerContext(dataset string) (string, error) {
	doc, err := c.GetSchema(dataset)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", dataplan.NewConfigurationError("render planner context", err)
	}
	return string(data), nil
}

// ListColumns returns the dataset's column names in declaration order.
func (c *Catalog) ListColumns(dataset string) ([]string, error) {
	doc, err := c.GetSchema(dataset)
	if err != nil {
		return nil, err
	}
	return doc.ColumnNames(), nil
}

// Datasets returns the registered dataset names, sorted.
func (c *Catalog) Datasets() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.docs))
	for n := range c.docs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
