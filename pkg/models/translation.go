package models

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// TableTranslation describes one conversion unit: a source table mapped to a
// target collection, or embedded into documents of another collection.
type TableTranslation struct {
	FromSchema   string `yaml:"fromSchema" json:"fromSchema"`
	FromTable    string `yaml:"fromTable" json:"fromTable"`
	ToCollection string `yaml:"toCollection,omitempty" json:"toCollection,omitempty"`

	// EmbedIn is a dot separated path of the parent document field receiving
	// the converted rows.
	EmbedIn               string `yaml:"embedIn,omitempty" json:"embedIn,omitempty"`
	EmbedInRoot           bool   `yaml:"embedInRoot,omitempty" json:"embedInRoot,omitempty"`
	EmbedSingle           bool   `yaml:"embedSingle,omitempty" json:"embedSingle,omitempty"`
	EmbedSourceIDColumn   string `yaml:"embedSourceIdColumn,omitempty" json:"embedSourceIdColumn,omitempty"`
	EmbedTargetIDColumn   string `yaml:"embedTargetIdColumn,omitempty" json:"embedTargetIdColumn,omitempty"`
	EmbedArrayField       string `yaml:"embedArrayField,omitempty" json:"embedArrayField,omitempty"`
	PreserveEmbedSourceID bool   `yaml:"preserveEmbedSourceId,omitempty" json:"preserveEmbedSourceId,omitempty"`

	// Columns is keyed by source column name.
	Columns        map[string]*ColumnTranslation `yaml:"-" json:"-"`
	DynamicColumns map[string]DynamicColumn      `yaml:"-" json:"-"`

	MongifyColumnNames bool `yaml:"mongifyColumnNames,omitempty" json:"mongifyColumnNames,omitempty"`
	MongifyTableName   bool `yaml:"mongifyTableName,omitempty" json:"mongifyTableName,omitempty"`

	// nil means true
	IncludeID         *bool `yaml:"includeId,omitempty" json:"includeId,omitempty"`
	IncludeTimestamps *bool `yaml:"includeTimestamps,omitempty" json:"includeTimestamps,omitempty"`
	IncludeVersion    *bool `yaml:"includeVersion,omitempty" json:"includeVersion,omitempty"`

	IncludeNulls            bool   `yaml:"includeNulls,omitempty" json:"includeNulls,omitempty"`
	AutoLegacyID            bool   `yaml:"autoLegacyId,omitempty" json:"autoLegacyId,omitempty"`
	LegacyIDDestinationName string `yaml:"legacyIdDestinationName,omitempty" json:"legacyIdDestinationName,omitempty"`

	IgnoreDependencies     bool        `yaml:"ignoreDependencies,omitempty" json:"ignoreDependencies,omitempty"`
	IgnoreDeletesOnPersist bool        `yaml:"ignoreDeletesOnPersist,omitempty" json:"ignoreDeletesOnPersist,omitempty"`
	AddedDependencies      []string    `yaml:"addedDependencies,omitempty" json:"addedDependencies,omitempty"`
	DeleteFields           []string    `yaml:"deleteFields,omitempty" json:"deleteFields,omitempty"`
	Indexes                []IndexSpec `yaml:"indexes,omitempty" json:"indexes,omitempty"`
	CustomWhere            string      `yaml:"customWhere,omitempty" json:"customWhere,omitempty"`

	Filter      func(doc bson.M) bool                                                `yaml:"-" json:"-"`
	PostProcess func(ctx context.Context, t *TableTranslation, docs []bson.M) error `yaml:"-" json:"-"`
	// OnPersist replaces the default persistence for the unit.
	OnPersist func(ctx context.Context, t *TableTranslation, docs []bson.M) error `yaml:"-" json:"-"`
}

// DynamicColumn is a synthesized field computed from the partially built document.
type DynamicColumn struct {
	JSONSchema map[string]any
	Value      func(t *TableTranslation, doc bson.M) any
}

// ColumnKind selects how a column is materialized into the target document.
type ColumnKind int

const (
	ColumnPassthrough ColumnKind = iota
	ColumnTranslated
	ColumnVirtual
)

func (k ColumnKind) String() string {
	switch k {
	case ColumnPassthrough:
		return "passthrough"
	case ColumnTranslated:
		return "translated"
	case ColumnVirtual:
		return "virtual"
	default:
		return "unknown"
	}
}

// ColumnTranslation maps one source column to a target field.
type ColumnTranslation struct {
	Kind       ColumnKind
	To         string
	Converter  ColumnConverter
	Translator *Translator
	Index      *IndexOptions
	Schema     *SchemaOptions
}

// Passthrough maps a source column to a field using the registry converter.
func Passthrough(to string) *ColumnTranslation {
	return &ColumnTranslation{Kind: ColumnPassthrough, To: to}
}

// Translated maps a column whose final value is looked up in another collection.
func Translated(to string, t *Translator) *ColumnTranslation {
	return &ColumnTranslation{Kind: ColumnTranslated, To: to, Translator: t}
}

// Virtual declares a field that exists only for translation or schema purposes
// and is never read from the source row.
func Virtual(to string) *ColumnTranslation {
	return &ColumnTranslation{Kind: ColumnVirtual, To: to}
}

func (c *ColumnTranslation) WithConverter(fn ColumnConverter) *ColumnTranslation {
	c.Converter = fn
	return c
}

func (c *ColumnTranslation) WithIndex(opts IndexOptions) *ColumnTranslation {
	c.Index = &opts
	return c
}

func (c *ColumnTranslation) WithSchema(opts SchemaOptions) *ColumnTranslation {
	c.Schema = &opts
	return c
}

// IsVirtual reports whether the column is skipped when reading rows.
func (c *ColumnTranslation) IsVirtual() bool {
	return c.Kind == ColumnVirtual
}

// DocumentGroup holds the documents of a batch sharing one join key.
type DocumentGroup struct {
	Key  any
	Docs []bson.M
}

// DocumentGroups is keyed by the canonical string form of the join key.
type DocumentGroups map[string]*DocumentGroup

// Translator resolves a field value through a lookup into an already
// populated collection.
type Translator struct {
	SourceCollection string `yaml:"sourceCollection" json:"sourceCollection"`
	SourceIDField    string `yaml:"sourceIdField,omitempty" json:"sourceIdField,omitempty"`
	DesiredField     string `yaml:"desiredField,omitempty" json:"desiredField,omitempty"`

	Query      func(t *TableTranslation, docs []bson.M, keys []any) bson.M                 `yaml:"-" json:"-"`
	Projection func(t *TableTranslation, docs []bson.M, keys []any) bson.M                 `yaml:"-" json:"-"`
	Processor  func(t *TableTranslation, groups DocumentGroups, results []bson.M) error `yaml:"-" json:"-"`
}

// Desired returns the looked up field, _id when unset.
func (t *Translator) Desired() string {
	if t.DesiredField == "" {
		return "_id"
	}
	return t.DesiredField
}

type SchemaMode string

const (
	SchemaInclusive SchemaMode = "inclusive"
	SchemaExclusive SchemaMode = "exclusive"
)

// SchemaOptions overrides the generated schema fragment of a column.
type SchemaOptions struct {
	JSONSchema map[string]any `yaml:"jsonSchema" json:"jsonSchema"`
	Mode       SchemaMode     `yaml:"mode,omitempty" json:"mode,omitempty"`
}

type IndexOptions struct {
	Name   string `yaml:"name,omitempty" json:"name,omitempty"`
	Unique bool   `yaml:"unique,omitempty" json:"unique,omitempty"`
	Sparse bool   `yaml:"sparse,omitempty" json:"sparse,omitempty"`
}

type IndexField struct {
	Field     string `yaml:"field" json:"field"`
	Direction int    `yaml:"direction,omitempty" json:"direction,omitempty"`
	// Kind is a special index type such as 2dsphere or text.
	Kind string `yaml:"kind,omitempty" json:"kind,omitempty"`
}

// IndexSpec is a collection level index declared on a unit.
type IndexSpec struct {
	Fields  []IndexField `yaml:"fields" json:"fields"`
	Options IndexOptions `yaml:"options,omitempty" json:"options,omitempty"`
}

// Keys returns the ordered index key document.
func (s IndexSpec) Keys() bson.D {
	keys := make(bson.D, 0, len(s.Fields))
	for _, f := range s.Fields {
		var v any = 1
		switch {
		case f.Kind != "":
			v = f.Kind
		case f.Direction != 0:
			v = f.Direction
		}
		keys = append(keys, bson.E{Key: f.Field, Value: v})
	}
	return keys
}

// TranslatorDefinition summarizes how a unit's fields map back to source columns.
type TranslatorDefinition struct {
	Collection     string            `json:"collection"`
	Table          string            `json:"table"`
	Schema         string            `json:"schema"`
	ColumnMappings map[string]string `json:"columnMappings"`
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}

// BoolOr dereferences b, returning def when nil.
func BoolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
