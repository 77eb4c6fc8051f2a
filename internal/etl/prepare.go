package etl

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/taicho/postgres-to-mongo/pkg/models"
	"github.com/taicho/postgres-to-mongo/pkg/utils"
)

const (
	defaultLegacyIDField = "_legacyId"
	defaultEmbedTarget   = "_id"
)

// unit is a conversion unit with defaults applied. It owns copies of the
// caller's column declarations, so finalizing it never mutates the input.
type unit struct {
	*models.TableTranslation

	embedPath []string
	hasEmbed  bool
	// embedKeyField is the document field holding the parent join key.
	embedKeyField string

	includeID         bool
	includeTimestamps bool
	includeVersion    bool

	finalized bool
	order     []string
	indexed   map[string]bool
}

func prepare(t *models.TableTranslation) (*unit, error) {
	if t == nil {
		return nil, newConfigError("", "nil table translation")
	}
	cp := *t
	label := cp.FromSchema + "." + cp.FromTable
	if cp.FromSchema == "" {
		return nil, newConfigError(label, "fromSchema must be defined")
	}
	if cp.FromTable == "" {
		return nil, newConfigError(label, "fromTable must be defined")
	}

	u := &unit{
		TableTranslation:  &cp,
		hasEmbed:          cp.EmbedIn != "" || cp.EmbedInRoot,
		includeID:         models.BoolOr(cp.IncludeID, true),
		includeTimestamps: models.BoolOr(cp.IncludeTimestamps, true),
		includeVersion:    models.BoolOr(cp.IncludeVersion, true),
		indexed:           map[string]bool{},
	}
	if cp.EmbedIn != "" {
		u.embedPath = strings.Split(cp.EmbedIn, ".")
	}

	if err := validateUnit(u, label); err != nil {
		return nil, err
	}

	if cp.ToCollection == "" {
		cp.ToCollection = cp.FromTable
		if cp.MongifyTableName {
			cp.ToCollection = utils.ToMongoName(cp.FromTable)
		}
	}
	if cp.LegacyIDDestinationName == "" {
		cp.LegacyIDDestinationName = defaultLegacyIDField
	}
	if cp.EmbedTargetIDColumn == "" {
		cp.EmbedTargetIDColumn = defaultEmbedTarget
	}

	cp.Columns = make(map[string]*models.ColumnTranslation, len(t.Columns))
	for name, col := range t.Columns {
		if col == nil {
			return nil, newConfigError(label, "column %q has no translation", name)
		}
		c := *col
		if c.Translator != nil {
			tr := *c.Translator
			c.Translator = &tr
		}
		cp.Columns[name] = &c
	}
	cp.DynamicColumns = maps.Clone(t.DynamicColumns)
	cp.AddedDependencies = slices.Clone(t.AddedDependencies)
	cp.DeleteFields = slices.Clone(t.DeleteFields)
	return u, nil
}

func (u *unit) label() string {
	if u.hasEmbed {
		return fmt.Sprintf("%s.%s -> %s.%s", u.FromSchema, u.FromTable, u.ToCollection, u.embedLabel())
	}
	return fmt.Sprintf("%s.%s -> %s", u.FromSchema, u.FromTable, u.ToCollection)
}

func (u *unit) embedLabel() string {
	if u.EmbedInRoot {
		return "$root"
	}
	return u.EmbedIn
}

// nodeName identifies the unit in the dependency graph.
func (u *unit) nodeName() string {
	if u.hasEmbed {
		return u.FromTable
	}
	return u.ToCollection
}

func (u *unit) targetName(column string) string {
	if u.MongifyColumnNames {
		return utils.ToMongoName(column)
	}
	return column
}

// columnNames returns the declared columns, in source order once finalized.
func (u *unit) columnNames() []string {
	if u.order != nil {
		return u.order
	}
	names := slices.Collect(maps.Keys(u.Columns))
	slices.Sort(names)
	return names
}

// finalize completes the column configuration from the source metadata:
// legacy id injection, pass-through mappings for unmapped columns and the
// embed join column. It runs once per unit.
func (u *unit) finalize(cols models.TableColumns) error {
	if u.finalized {
		return nil
	}
	byName := cols.ByName()

	if u.AutoLegacyID {
		if _, declared := u.Columns["id"]; !declared {
			if meta, ok := byName["id"]; ok {
				u.Columns["id"] = models.Passthrough(u.LegacyIDDestinationName).
					WithConverter(utils.LegacyIDConverter(meta)).
					WithIndex(models.IndexOptions{})
			}
		}
	}

	for _, c := range cols {
		col, ok := u.Columns[c.ColumnName]
		if !ok {
			u.Columns[c.ColumnName] = models.Passthrough(u.targetName(c.ColumnName))
			continue
		}
		if col.To == "" {
			col.To = u.targetName(c.ColumnName)
		}
	}
	for name, col := range u.Columns {
		if col.To == "" {
			col.To = u.targetName(name)
		}
	}

	if u.hasEmbed {
		if err := u.resolveEmbedKey(byName); err != nil {
			return err
		}
	}

	order := make([]string, 0, len(u.Columns))
	for _, c := range cols {
		order = append(order, c.ColumnName)
	}
	var extra []string
	for name := range u.Columns {
		if _, ok := byName[name]; !ok {
			extra = append(extra, name)
		}
	}
	slices.Sort(extra)
	u.order = append(order, extra...)
	u.finalized = true
	return nil
}

func (u *unit) resolveEmbedKey(byName map[string]models.ColumnInfo) error {
	key := u.targetName(u.EmbedSourceIDColumn)
	for _, col := range u.Columns {
		if col.To == key {
			u.embedKeyField = key
			return nil
		}
	}
	source := u.EmbedSourceIDColumn
	if _, ok := byName[source]; !ok {
		if _, ok := byName[key]; !ok {
			return newConfigError(u.label(), "embed source id column (%s) not found in source dataset", u.EmbedSourceIDColumn)
		}
		source = key
	}
	col, ok := u.Columns[source]
	if !ok {
		col = models.Passthrough(key)
		u.Columns[source] = col
	}
	col.To = key
	u.embedKeyField = key
	return nil
}

// resolveConverters assigns the registry converter to every readable column
// and checks column kinds and translators. Only data conversion needs it.
func (u *unit) resolveConverters(cols models.TableColumns) error {
	byName := cols.ByName()
	for _, name := range u.columnNames() {
		col := u.Columns[name]
		if err := validateColumn(u, name, col); err != nil {
			return err
		}
		if col.IsVirtual() || col.Converter != nil {
			continue
		}
		meta, ok := byName[name]
		if !ok {
			return newConfigError(u.label(), "column %q is not in the source table and has no converter", name)
		}
		conv, err := utils.ConverterFor(meta)
		if err != nil {
			return &ConfigError{Unit: u.label(), Msg: "resolving converter", Cause: err}
		}
		col.Converter = conv
	}
	return nil
}
