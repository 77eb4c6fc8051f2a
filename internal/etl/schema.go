package etl

import (
	"maps"
	"slices"
	"strings"

	"github.com/taicho/postgres-to-mongo/pkg/models"
	"github.com/taicho/postgres-to-mongo/pkg/utils"
	"go.uber.org/zap"
)

type schemaGenerator struct {
	registry *SchemaRegistry
	defaults utils.DefaultValueFunc
	log      *zap.Logger
}

// generate builds the unit's schema fragment and merges it into the registry,
// either as the collection schema or spliced into its parent at the embed path.
func (g *schemaGenerator) generate(u *unit, cols models.TableColumns) error {
	if err := u.finalize(cols); err != nil {
		return err
	}
	g.log.Info("generating schema", zap.String("unit", u.label()))

	byName := cols.ByName()
	props := map[string]any{}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(u.Indexes) > 0 {
		schema["indexes"] = indexDescriptors(u.Indexes)
	}

	var required []string
	for _, name := range u.columnNames() {
		col := u.Columns[name]
		if slices.Contains(u.DeleteFields, col.To) {
			continue
		}
		to := col.To
		meta, hasMeta := byName[name]
		if hasMeta {
			if to == "id" && meta.UDTName == "uuid" {
				to = "_id"
			}
			if to != u.LegacyIDDestinationName && to != u.embedKeyField && meta.ColumnDefault == "" && !meta.Nullable() {
				required = append(required, to)
			}
		}

		frag, err := g.columnSchema(u, name, col, meta, hasMeta, to)
		if err != nil {
			return err
		}
		if frag == nil {
			continue
		}
		if to == "id" && frag["type"] == "string" && frag["format"] == "ObjectId" {
			to = "_id"
		}
		props[to] = frag
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	dynamic := maps.Clone(u.DynamicColumns)
	if _, ok := props["_id"]; !ok && u.AutoLegacyID {
		if dynamic == nil {
			dynamic = map[string]models.DynamicColumn{}
		}
		dynamic["_id"] = models.DynamicColumn{JSONSchema: map[string]any{"type": "string", "format": "ObjectId"}}
	}
	for _, name := range slices.Sorted(maps.Keys(dynamic)) {
		dc := dynamic[name]
		if dc.JSONSchema == nil {
			continue
		}
		frag := deepCopy(dc.JSONSchema)
		if t := frag["type"]; t == "object" || t == "array" {
			frag["title"] = name
		}
		props[name] = frag
	}

	if !u.hasEmbed {
		schema["title"] = u.ToCollection
		g.registry.Merge(u.ToCollection, schema)
		return nil
	}
	return g.splice(u, schema)
}

func (g *schemaGenerator) columnSchema(u *unit, name string, col *models.ColumnTranslation, meta models.ColumnInfo, hasMeta bool, to string) (map[string]any, error) {
	switch {
	case col.Kind == models.ColumnTranslated:
		frag := map[string]any{"comment": "Unable to determine schema"}
		if col.Translator == nil || col.Translator.DesiredField == "" {
			frag = map[string]any{"type": "string", "format": "ObjectId"}
		}
		return applySchemaOptions(col, frag), nil
	case col.IsVirtual():
		if col.Schema == nil {
			return nil, nil
		}
		return applySchemaOptions(col, map[string]any{}), nil
	}

	if col.Schema != nil && col.Schema.Mode == models.SchemaExclusive {
		return applySchemaOptions(col, nil), nil
	}
	if !hasMeta {
		return nil, newConfigError(u.label(), "column %q has no source metadata to derive a schema from", name)
	}
	frag, err := utils.SchemaFor(meta)
	if err != nil {
		return nil, &ConfigError{Unit: u.label(), Msg: "generating schema", Cause: err}
	}
	if u.AutoLegacyID && to == u.LegacyIDDestinationName && frag["format"] == "ObjectId" {
		// uuid legacy keys are stored as their text form
		return applySchemaOptions(col, map[string]any{"type": "string"}), nil
	}
	if frag["format"] == "geoJSON" {
		frag["title"] = to
		frag["index"] = map[string]any{"type": "2dsphere"}
	}
	if meta.ColumnDefault != "" && g.defaults != nil {
		typ, _ := frag["type"].(string)
		format, _ := frag["format"].(string)
		if dv := g.defaults(typ, format, meta.ColumnDefault); dv != nil {
			frag["default"] = dv
		}
	}
	return applySchemaOptions(col, frag), nil
}

func applySchemaOptions(col *models.ColumnTranslation, frag map[string]any) map[string]any {
	if col.Schema == nil {
		return frag
	}
	if col.Schema.Mode == models.SchemaExclusive {
		return deepCopy(col.Schema.JSONSchema)
	}
	out := maps.Clone(frag)
	if out == nil {
		out = map[string]any{}
	}
	for k, v := range col.Schema.JSONSchema {
		out[k] = deepCopyValue(v)
	}
	return out
}

func (g *schemaGenerator) splice(u *unit, schema map[string]any) error {
	parent, ok := g.registry.Get(u.ToCollection)
	if !ok {
		g.log.Warn("parent schema not generated, skipping embed", zap.String("unit", u.label()), zap.String("collection", u.ToCollection))
		return nil
	}
	props := schema["properties"].(map[string]any)

	var related []any
	for _, name := range u.columnNames() {
		col := u.Columns[name]
		if col.Translator != nil && col.Translator.SourceCollection != "" {
			related = append(related, map[string]any{
				"relatedField":      col.Translator.Desired(),
				"relatedCollection": col.Translator.SourceCollection,
				"localField":        col.To,
			})
		}
	}

	embedded := map[string]any{"type": "array"}
	switch {
	case u.EmbedArrayField != "":
		embedded["items"] = props[u.EmbedArrayField]
	case u.EmbedSingle || u.EmbedInRoot:
		delete(props, u.embedKeyField)
		delete(props, "_id")
		embedded = schema
		delete(embedded, "indexes")
	default:
		delete(props, u.embedKeyField)
		embedded["items"] = schema
	}
	if len(related) > 0 {
		embedded["relatedObjects"] = related
	}

	parentProps, ok := parent["properties"].(map[string]any)
	if !ok {
		parentProps = map[string]any{}
		parent["properties"] = parentProps
	}

	if u.EmbedInRoot {
		for k, v := range props {
			parentProps[k] = v
		}
		return nil
	}
	if len(u.embedPath) == 1 {
		embedded["title"] = u.EmbedIn
		existing, _ := parentProps[u.EmbedIn].(map[string]any)
		parentProps[u.EmbedIn] = mergeSchemas(existing, embedded)
		return nil
	}

	title := u.embedPath[len(u.embedPath)-1]
	embedded["title"] = title
	target, err := resolveSchemaPath(parent, u.embedPath[:len(u.embedPath)-1])
	if err != nil {
		return err
	}
	if p, ok := target["properties"].(map[string]any); ok {
		p[title] = embedded
		return nil
	}
	if items, ok := target["items"].(map[string]any); ok {
		p, ok := items["properties"].(map[string]any)
		if !ok {
			p = map[string]any{}
			items["properties"] = p
		}
		p[title] = embedded
		return nil
	}
	parentTitle, _ := parent["title"].(string)
	return &SchemaPathError{Path: u.EmbedIn, Segment: title, Title: parentTitle}
}

// resolveSchemaPath walks properties and array items along path. A "$"
// segment steps into the items of an array.
func resolveSchemaPath(root map[string]any, path []string) (map[string]any, error) {
	title, _ := root["title"].(string)
	current := root
	for _, seg := range path {
		if seg == "$" {
			items, ok := current["items"].(map[string]any)
			if !ok {
				return nil, &SchemaPathError{Path: strings.Join(path, "."), Segment: seg, Title: title}
			}
			current = items
			continue
		}
		next, ok := schemaChild(current, seg)
		if !ok {
			return nil, &SchemaPathError{Path: strings.Join(path, "."), Segment: seg, Title: title}
		}
		current = next
	}
	return current, nil
}

func schemaChild(s map[string]any, key string) (map[string]any, bool) {
	if props, ok := s["properties"].(map[string]any); ok {
		if child, ok := props[key].(map[string]any); ok {
			return child, true
		}
	}
	if items, ok := s["items"].(map[string]any); ok {
		return schemaChild(items, key)
	}
	return nil, false
}

func indexDescriptors(specs []models.IndexSpec) []any {
	out := make([]any, 0, len(specs))
	for _, s := range specs {
		fields := map[string]any{}
		for _, e := range s.Keys() {
			fields[e.Key] = e.Value
		}
		d := map[string]any{"fields": fields}
		opts := map[string]any{}
		if s.Options.Name != "" {
			opts["name"] = s.Options.Name
		}
		if s.Options.Unique {
			opts["unique"] = true
		}
		if s.Options.Sparse {
			opts["sparse"] = true
		}
		if len(opts) > 0 {
			d["options"] = opts
		}
		out = append(out, d)
	}
	return out
}
