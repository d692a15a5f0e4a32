package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	errs "github.com/cmbsolver/tuitcptester/pkg/errors"
	"github.com/cmbsolver/tuitcptester/pkg/types"
)

// Document is the persisted connection list. The file is plain JSON so it
// can be hand-edited and checked into a repo next to the setup it tests.
type Document struct {
	Connections []types.ConnectionConfig `json:"connections"`
}

// LoadDocument reads the connection list from path. A missing file is an
// empty document, not an error, so a fresh working directory just works.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Document{}, nil
		}
		return nil, fmt.Errorf("read document %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errs.ErrInvalidConfig(fmt.Sprintf("parse document %s", path), err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// SaveDocument writes the connection list pretty-printed, creating parent
// directories as needed.
func SaveDocument(path string, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create document directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write document %s: %w", path, err)
	}
	return nil
}

// Validate checks every connection definition and rejects duplicate names,
// which would make log output ambiguous.
func (d *Document) Validate() error {
	seen := make(map[string]struct{}, len(d.Connections))
	for i := range d.Connections {
		c := &d.Connections[i]
		if err := c.Validate(); err != nil {
			return errs.ErrInvalidConfig("invalid connection definition", err)
		}
		if c.Name != "" {
			if _, dup := seen[c.Name]; dup {
				return errs.ErrInvalidConfig(fmt.Sprintf("duplicate connection name %q", c.Name), nil)
			}
			seen[c.Name] = struct{}{}
		}
	}
	return nil
}
