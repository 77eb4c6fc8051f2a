// Package cache stores source column metadata as formatted JSON files, one
// per table, so repeated runs can skip information_schema queries.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/taicho/postgres-to-mongo/pkg/models"
)

type Metadata struct {
	dir string
}

func NewMetadata(dir string) *Metadata {
	return &Metadata{dir: dir}
}

func (m *Metadata) Dir() (string, error) {
	return filepath.Abs(m.dir)
}

func (m *Metadata) path(schema, table string) (string, error) {
	dir, err := m.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fmt.Sprintf("%s.%s.json", schema, table)), nil
}

func (m *Metadata) Exists(schema, table string) bool {
	p, err := m.path(schema, table)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Load returns the cached columns, or ok=false when no cache file exists.
func (m *Metadata) Load(schema, table string) (models.TableColumns, bool, error) {
	p, err := m.path(schema, table)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading metadata cache %s: %w", p, err)
	}
	byName := map[string]models.ColumnInfo{}
	if err := json.Unmarshal(data, &byName); err != nil {
		return nil, false, fmt.Errorf("parsing metadata cache %s: %w", p, err)
	}
	return models.NewTableColumns(byName), true, nil
}

// Save writes the columns keyed by name, creating the cache directory if needed.
func (m *Metadata) Save(schema, table string, columns models.TableColumns) error {
	dir, err := m.Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating metadata cache directory: %w", err)
	}
	p, err := m.path(schema, table)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(columns.ByName(), "", "    ")
	if err != nil {
		return fmt.Errorf("encoding metadata for %s.%s: %w", schema, table, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("writing metadata cache %s: %w", p, err)
	}
	return nil
}
