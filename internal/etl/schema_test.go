package etl

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/taicho/postgres-to-mongo/pkg/models"
	"github.com/taicho/postgres-to-mongo/pkg/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

func newTestGenerator() *schemaGenerator {
	return &schemaGenerator{
		registry: NewSchemaRegistry(nil),
		defaults: utils.DefaultValueConverter,
		log:      zap.NewNop(),
	}
}

func generateAll(t *testing.T, g *schemaGenerator, cols map[string]models.TableColumns, tts ...*models.TableTranslation) {
	t.Helper()
	for _, tt := range tts {
		u, err := prepare(tt)
		require.NoError(t, err)
		require.NoError(t, g.generate(u, cols[tt.FromTable]))
	}
}

func requireSchema(t *testing.T, want, got map[string]any) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("schema mismatch (-want +got):\n%s", diff)
	}
}

var userTables = map[string]models.TableColumns{
	"users": {
		{ColumnName: "id", DataType: "integer", IsNullable: "NO", ColumnDefault: "nextval('users_id_seq'::regclass)", OrdinalPosition: 1},
		{ColumnName: "name", DataType: "text", IsNullable: "NO", OrdinalPosition: 2},
	},
	"user_profiles": {
		{ColumnName: "user_id", DataType: "integer", IsNullable: "NO", OrdinalPosition: 1},
		{ColumnName: "bio", DataType: "text", IsNullable: "YES", OrdinalPosition: 2},
	},
	"user_tags": {
		{ColumnName: "user_id", DataType: "integer", IsNullable: "NO", OrdinalPosition: 1},
		{ColumnName: "label", DataType: "text", IsNullable: "NO", OrdinalPosition: 2},
	},
	"user_labels": {
		{ColumnName: "user_id", DataType: "integer", IsNullable: "NO", OrdinalPosition: 1},
		{ColumnName: "label", DataType: "text", IsNullable: "NO", OrdinalPosition: 2},
		{ColumnName: "color", DataType: "text", IsNullable: "NO", OrdinalPosition: 3},
	},
	"user_settings": {
		{ColumnName: "user_id", DataType: "integer", IsNullable: "NO", OrdinalPosition: 1},
		{ColumnName: "theme", DataType: "text", IsNullable: "YES", ColumnDefault: "'dark'::text", OrdinalPosition: 2},
	},
}

func TestSchemaGenerator_Employees(t *testing.T) {
	t.Parallel()

	g := newTestGenerator()
	cols := map[string]models.TableColumns{"employees": {
		{ColumnName: "id", DataType: "uuid", UDTName: "uuid", IsNullable: "NO", ColumnDefault: "uuid_generate_v4()", OrdinalPosition: 1},
		{ColumnName: "name", DataType: "text", UDTName: "text", IsNullable: "NO", OrdinalPosition: 2},
		{ColumnName: "dept_id", DataType: "integer", UDTName: "int4", IsNullable: "YES", OrdinalPosition: 3},
	}}
	generateAll(t, g, cols, &models.TableTranslation{
		FromSchema:         "public",
		FromTable:          "employees",
		MongifyColumnNames: true,
		AutoLegacyID:       true,
	})

	got, ok := g.registry.Get("employees")
	require.True(t, ok)
	requireSchema(t, map[string]any{
		"type":  "object",
		"title": "employees",
		"properties": map[string]any{
			"_id":       map[string]any{"type": "string", "format": "ObjectId"},
			"_legacyId": map[string]any{"type": "string"},
			"name":      map[string]any{"type": "string"},
			"deptId":    map[string]any{"type": "integer"},
		},
		"required": []string{"name"},
	}, got)
}

func TestSchemaGenerator_UUIDPrimaryKey(t *testing.T) {
	t.Parallel()

	g := newTestGenerator()
	cols := map[string]models.TableColumns{"accounts": {
		{ColumnName: "id", DataType: "uuid", UDTName: "uuid", IsNullable: "NO", OrdinalPosition: 1},
	}}
	generateAll(t, g, cols, &models.TableTranslation{FromSchema: "public", FromTable: "accounts"})

	got, _ := g.registry.Get("accounts")
	props := got["properties"].(map[string]any)
	require.Contains(t, props, "_id")
	require.NotContains(t, props, "id")
	require.Equal(t, []string{"_id"}, got["required"])
}

func TestSchemaGenerator_Embeds(t *testing.T) {
	t.Parallel()

	g := newTestGenerator()
	generateAll(t, g, userTables,
		&models.TableTranslation{FromSchema: "public", FromTable: "users"},
		&models.TableTranslation{
			FromSchema: "public", FromTable: "user_profiles", ToCollection: "users",
			EmbedIn: "profile", EmbedSingle: true, EmbedSourceIDColumn: "user_id",
		},
		&models.TableTranslation{
			FromSchema: "public", FromTable: "user_tags", ToCollection: "users",
			EmbedIn: "tags", EmbedSourceIDColumn: "user_id",
		},
		&models.TableTranslation{
			FromSchema: "public", FromTable: "user_labels", ToCollection: "users",
			EmbedIn: "tags", EmbedSourceIDColumn: "user_id",
		},
		&models.TableTranslation{
			FromSchema: "public", FromTable: "user_settings", ToCollection: "users",
			EmbedInRoot: true, EmbedSourceIDColumn: "user_id",
		},
	)

	got, _ := g.registry.Get("users")
	requireSchema(t, map[string]any{
		"type":  "object",
		"title": "users",
		"properties": map[string]any{
			"id":    map[string]any{"type": "integer"},
			"name":  map[string]any{"type": "string"},
			"theme": map[string]any{"type": "string", "default": "dark"},
			"profile": map[string]any{
				"type":       "object",
				"title":      "profile",
				"properties": map[string]any{"bio": map[string]any{"type": "string"}},
			},
			"tags": map[string]any{
				"type":  "array",
				"title": "tags",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"label": map[string]any{"type": "string"},
						"color": map[string]any{"type": "string"},
					},
					"required": []string{"label", "color"},
				},
			},
		},
		"required": []string{"name"},
	}, got)
}

func TestSchemaGenerator_EmbedArrayField(t *testing.T) {
	t.Parallel()

	g := newTestGenerator()
	generateAll(t, g, userTables,
		&models.TableTranslation{FromSchema: "public", FromTable: "users"},
		&models.TableTranslation{
			FromSchema: "public", FromTable: "user_tags", ToCollection: "users",
			EmbedIn: "labels", EmbedArrayField: "label", EmbedSourceIDColumn: "user_id",
		},
	)

	got, _ := g.registry.Get("users")
	requireSchema(t, map[string]any{
		"type":  "array",
		"title": "labels",
		"items": map[string]any{"type": "string"},
	}, got["properties"].(map[string]any)["labels"].(map[string]any))
}

func TestSchemaGenerator_RelatedObjects(t *testing.T) {
	t.Parallel()

	g := newTestGenerator()
	cols := map[string]models.TableColumns{
		"users": userTables["users"],
		"user_roles": {
			{ColumnName: "user_id", DataType: "integer", IsNullable: "NO", OrdinalPosition: 1},
			{ColumnName: "role_id", DataType: "integer", IsNullable: "YES", OrdinalPosition: 2},
		},
	}
	generateAll(t, g, cols,
		&models.TableTranslation{FromSchema: "public", FromTable: "users"},
		&models.TableTranslation{
			FromSchema: "public", FromTable: "user_roles", ToCollection: "users",
			EmbedIn: "roles", EmbedSourceIDColumn: "user_id",
			Columns: map[string]*models.ColumnTranslation{
				"role_id": models.Translated("role", &models.Translator{SourceCollection: "roles", SourceIDField: "_legacyId"}),
			},
		},
	)

	got, _ := g.registry.Get("users")
	roles := got["properties"].(map[string]any)["roles"].(map[string]any)
	require.Equal(t, []any{map[string]any{
		"relatedField":      "_id",
		"relatedCollection": "roles",
		"localField":        "role",
	}}, roles["relatedObjects"])
	items := roles["items"].(map[string]any)
	require.Equal(t, map[string]any{"type": "string", "format": "ObjectId"}, items["properties"].(map[string]any)["role"])
}

func TestSchemaGenerator_DeepEmbed(t *testing.T) {
	t.Parallel()

	cols := map[string]models.TableColumns{
		"orders": {
			{ColumnName: "id", DataType: "integer", IsNullable: "NO", ColumnDefault: "nextval('orders_id_seq'::regclass)", OrdinalPosition: 1},
		},
		"order_items": {
			{ColumnName: "order_id", DataType: "integer", IsNullable: "NO", OrdinalPosition: 1},
			{ColumnName: "sku", DataType: "text", IsNullable: "YES", OrdinalPosition: 2},
		},
		"item_discounts": {
			{ColumnName: "item_id", DataType: "integer", IsNullable: "NO", OrdinalPosition: 1},
			{ColumnName: "percent", DataType: "numeric", IsNullable: "YES", OrdinalPosition: 2},
		},
	}
	orders := &models.TableTranslation{FromSchema: "public", FromTable: "orders"}
	items := &models.TableTranslation{
		FromSchema: "public", FromTable: "order_items", ToCollection: "orders",
		EmbedIn: "items", EmbedSourceIDColumn: "order_id",
	}

	t.Run("resolves array items", func(t *testing.T) {
		t.Parallel()

		g := newTestGenerator()
		generateAll(t, g, cols, orders, items, &models.TableTranslation{
			FromSchema: "public", FromTable: "item_discounts", ToCollection: "orders",
			EmbedIn: "items.$.discounts", EmbedSourceIDColumn: "item_id", OnPersist: noopPersist,
		})

		got, _ := g.registry.Get("orders")
		itemSchema := got["properties"].(map[string]any)["items"].(map[string]any)["items"].(map[string]any)
		requireSchema(t, map[string]any{
			"type":  "array",
			"title": "discounts",
			"items": map[string]any{
				"type":       "object",
				"properties": map[string]any{"percent": map[string]any{"type": "number"}},
			},
		}, itemSchema["properties"].(map[string]any)["discounts"].(map[string]any))
	})

	t.Run("missing segment", func(t *testing.T) {
		t.Parallel()

		g := newTestGenerator()
		generateAll(t, g, cols, orders)
		u, err := prepare(&models.TableTranslation{
			FromSchema: "public", FromTable: "item_discounts", ToCollection: "orders",
			EmbedIn: "lines.discounts", EmbedSourceIDColumn: "item_id", OnPersist: noopPersist,
		})
		require.NoError(t, err)

		err = g.generate(u, cols["item_discounts"])
		require.ErrorIs(t, err, ErrSchema)
		var perr *SchemaPathError
		require.ErrorAs(t, err, &perr)
		require.Equal(t, "lines", perr.Segment)
		require.Equal(t, "orders", perr.Title)
	})
}

func TestSchemaGenerator_MissingParent(t *testing.T) {
	t.Parallel()

	g := newTestGenerator()
	generateAll(t, g, userTables, &models.TableTranslation{
		FromSchema: "public", FromTable: "user_tags", ToCollection: "users",
		EmbedIn: "tags", EmbedSourceIDColumn: "user_id",
	})
	require.Empty(t, g.registry.Names())
}

func TestSchemaGenerator_ColumnFragments(t *testing.T) {
	t.Parallel()

	cols := models.TableColumns{
		{ColumnName: "id", DataType: "integer", IsNullable: "NO", ColumnDefault: "nextval('places_id_seq'::regclass)", OrdinalPosition: 1},
		{ColumnName: "location", DataType: "USER-DEFINED", UDTName: "geography", IsNullable: "YES", OrdinalPosition: 2},
		{ColumnName: "active", DataType: "boolean", IsNullable: "NO", ColumnDefault: "false", OrdinalPosition: 3},
		{ColumnName: "visits", DataType: "integer", IsNullable: "NO", ColumnDefault: "0", OrdinalPosition: 4},
		{ColumnName: "code", DataType: "text", IsNullable: "YES", OrdinalPosition: 5},
		{ColumnName: "notes", DataType: "jsonb", IsNullable: "YES", OrdinalPosition: 6},
		{ColumnName: "owner_id", DataType: "integer", IsNullable: "YES", OrdinalPosition: 7},
		{ColumnName: "editor_id", DataType: "integer", IsNullable: "YES", OrdinalPosition: 8},
		{ColumnName: "secret", DataType: "text", IsNullable: "YES", OrdinalPosition: 9},
	}

	g := newTestGenerator()
	generateAll(t, g, map[string]models.TableColumns{"places": cols}, &models.TableTranslation{
		FromSchema:   "public",
		FromTable:    "places",
		DeleteFields: []string{"secret"},
		Indexes: []models.IndexSpec{{
			Fields:  []models.IndexField{{Field: "code"}},
			Options: models.IndexOptions{Unique: true},
		}},
		Columns: map[string]*models.ColumnTranslation{
			"code": models.Passthrough("code").WithSchema(models.SchemaOptions{
				JSONSchema: map[string]any{"maxLength": 8},
			}),
			"notes": models.Passthrough("notes").WithSchema(models.SchemaOptions{
				Mode:       models.SchemaExclusive,
				JSONSchema: map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			}),
			"owner_id": models.Translated("owner", &models.Translator{SourceCollection: "users", SourceIDField: "_legacyId"}),
			"editor_id": models.Translated("editorEmail", &models.Translator{
				SourceCollection: "users", SourceIDField: "_legacyId", DesiredField: "email",
			}),
			"rating": models.Virtual("rating").WithSchema(models.SchemaOptions{
				JSONSchema: map[string]any{"type": "number"},
			}),
			"scratch": models.Virtual("scratch"),
		},
		DynamicColumns: map[string]models.DynamicColumn{
			"meta": {
				JSONSchema: map[string]any{"type": "object"},
				Value:      func(*models.TableTranslation, bson.M) any { return bson.M{} },
			},
		},
	})

	got, _ := g.registry.Get("places")
	requireSchema(t, map[string]any{
		"type":  "object",
		"title": "places",
		"properties": map[string]any{
			"id": map[string]any{"type": "integer"},
			"location": map[string]any{
				"type":   "object",
				"format": "geoJSON",
				"title":  "location",
				"index":  map[string]any{"type": "2dsphere"},
				"properties": map[string]any{
					"type":        map[string]any{"type": "string"},
					"coordinates": map[string]any{"type": "array"},
				},
			},
			"active":      map[string]any{"type": "boolean", "default": false},
			"visits":      map[string]any{"type": "integer", "default": int64(0)},
			"code":        map[string]any{"type": "string", "maxLength": 8},
			"notes":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"owner":       map[string]any{"type": "string", "format": "ObjectId"},
			"editorEmail": map[string]any{"comment": "Unable to determine schema"},
			"rating":      map[string]any{"type": "number"},
			"meta":        map[string]any{"type": "object", "title": "meta"},
		},
		"indexes": []any{map[string]any{
			"fields":  map[string]any{"code": 1},
			"options": map[string]any{"unique": true},
		}},
	}, got)
}

func TestSchemaGenerator_MergesSharedCollection(t *testing.T) {
	t.Parallel()

	reg := NewSchemaRegistry(map[string]map[string]any{
		"users": {"type": "object", "properties": map[string]any{"legacy": map[string]any{"type": "string"}}},
	})
	g := &schemaGenerator{registry: reg, defaults: utils.DefaultValueConverter, log: zap.NewNop()}
	generateAll(t, g, userTables, &models.TableTranslation{FromSchema: "public", FromTable: "users"})

	got, _ := reg.Get("users")
	props := got["properties"].(map[string]any)
	require.Contains(t, props, "legacy")
	require.Contains(t, props, "name")
}

func TestMergeSchemas(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		dst  map[string]any
		src  map[string]any
		want map[string]any
	}{
		{
			name: "nil destination",
			src:  map[string]any{"type": "object"},
			want: map[string]any{"type": "object"},
		},
		{
			name: "nested maps merge",
			dst:  map[string]any{"properties": map[string]any{"a": map[string]any{"type": "string"}}},
			src:  map[string]any{"properties": map[string]any{"b": map[string]any{"type": "integer"}}},
			want: map[string]any{"properties": map[string]any{
				"a": map[string]any{"type": "string"},
				"b": map[string]any{"type": "integer"},
			}},
		},
		{
			name: "string arrays union",
			dst:  map[string]any{"required": []string{"a", "b"}},
			src:  map[string]any{"required": []any{"b", "c"}},
			want: map[string]any{"required": []string{"a", "b", "c"}},
		},
		{
			name: "other arrays replaced",
			dst:  map[string]any{"enum": []any{1, 2}},
			src:  map[string]any{"enum": []any{3}},
			want: map[string]any{"enum": []any{3}},
		},
		{
			name: "scalars overwritten",
			dst:  map[string]any{"type": "string", "title": "x"},
			src:  map[string]any{"type": "integer"},
			want: map[string]any{"type": "integer", "title": "x"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			requireSchema(t, tc.want, mergeSchemas(tc.dst, tc.src))
		})
	}
}

func TestMergeSchemas_DoesNotAlias(t *testing.T) {
	t.Parallel()

	dst := map[string]any{"properties": map[string]any{"a": map[string]any{"type": "string"}}}
	src := map[string]any{"properties": map[string]any{"b": map[string]any{"type": "string"}}}
	out := mergeSchemas(dst, src)
	out["properties"].(map[string]any)["c"] = true
	out["properties"].(map[string]any)["b"].(map[string]any)["type"] = "integer"

	require.NotContains(t, dst["properties"], "c")
	require.Equal(t, "string", src["properties"].(map[string]any)["b"].(map[string]any)["type"])
}

func TestSchemaRegistry_AllReturnsCopies(t *testing.T) {
	t.Parallel()

	r := NewSchemaRegistry(nil)
	r.Merge("b", map[string]any{"type": "object"})
	r.Merge("a", map[string]any{"type": "object"})
	require.Equal(t, []string{"a", "b"}, r.Names())

	all := r.All()
	all["a"]["type"] = "array"
	got, _ := r.Get("a")
	require.Equal(t, "object", got["type"])
}
