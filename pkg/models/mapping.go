package models

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"gopkg.in/yaml.v3"
)

// MappingFile is the root of a declarative mapping file (YAML or JSON).
// Hooks such as filters and converters are only available when building
// translations in code.
type MappingFile struct {
	Version string         `yaml:"version"`
	Tables  []TableMapping `yaml:"tables"`
}

type TableMapping struct {
	TableTranslation `yaml:",inline"`
	Columns          map[string]ColumnMapping `yaml:"columns,omitempty"`
	DynamicColumns   map[string]DynamicMapping `yaml:"dynamicColumns,omitempty"`
}

type ColumnMapping struct {
	To         string         `yaml:"to,omitempty"`
	Index      *IndexFlag     `yaml:"index,omitempty"`
	Virtual    bool           `yaml:"isVirtual,omitempty"`
	Translator *Translator    `yaml:"translator,omitempty"`
	Schema     *SchemaOptions `yaml:"schemaOptions,omitempty"`
}

// DynamicMapping declares a constant valued synthesized field.
type DynamicMapping struct {
	JSONSchema map[string]any `yaml:"jsonSchema,omitempty"`
	Value      any            `yaml:"value"`
}

// IndexFlag accepts either `index: true` or an options object.
type IndexFlag struct {
	IndexOptions
	enabled bool
}

func (f *IndexFlag) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var b bool
		if err := node.Decode(&b); err != nil {
			return fmt.Errorf("index must be a boolean or an object: %w", err)
		}
		f.enabled = b
		return nil
	}
	if err := node.Decode(&f.IndexOptions); err != nil {
		return err
	}
	f.enabled = true
	return nil
}

func LoadMapping(data []byte) (*MappingFile, error) {
	var m MappingFile
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ToTranslations builds the conversion units, choosing each column kind from
// the declared fields.
func (m *MappingFile) ToTranslations() ([]*TableTranslation, error) {
	out := make([]*TableTranslation, 0, len(m.Tables))
	for i := range m.Tables {
		tm := m.Tables[i]
		t := tm.TableTranslation
		if t.FromTable == "" {
			return nil, fmt.Errorf("tables[%d]: fromTable is required", i)
		}
		t.Columns = make(map[string]*ColumnTranslation, len(tm.Columns))
		for name, cm := range tm.Columns {
			var col *ColumnTranslation
			switch {
			case cm.Translator != nil:
				if cm.Translator.SourceCollection == "" {
					return nil, fmt.Errorf("%s.%s: translator requires sourceCollection", t.FromTable, name)
				}
				col = Translated(cm.To, cm.Translator)
			case cm.Virtual:
				col = Virtual(cm.To)
			default:
				col = Passthrough(cm.To)
			}
			if cm.Index != nil && cm.Index.enabled {
				col.WithIndex(cm.Index.IndexOptions)
			}
			if cm.Schema != nil {
				col.WithSchema(*cm.Schema)
			}
			t.Columns[name] = col
		}
		if len(tm.DynamicColumns) > 0 {
			t.DynamicColumns = make(map[string]DynamicColumn, len(tm.DynamicColumns))
			for name, dm := range tm.DynamicColumns {
				value := dm.Value
				t.DynamicColumns[name] = DynamicColumn{
					JSONSchema: dm.JSONSchema,
					Value:      func(*TableTranslation, bson.M) any { return value },
				}
			}
		}
		out = append(out, &t)
	}
	return out, nil
}
