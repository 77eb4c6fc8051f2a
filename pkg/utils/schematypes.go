package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/taicho/postgres-to-mongo/pkg/models"
)

// Sentinels written as schema defaults for server generated values.
const (
	DefaultNow      = "Date.now"
	DefaultObjectID = "ObjectId"
)

// DefaultValueFunc turns a column default expression into a literal schema default.
// A nil result means no default.
type DefaultValueFunc func(schemaType, schemaFormat, value string) any

// SchemaFor returns the JSON-Schema fragment for a source column type.
func SchemaFor(meta models.ColumnInfo) (map[string]any, error) {
	switch typeFamily(meta) {
	case familyJSON:
		return map[string]any{"type": "object"}, nil
	case familyUUID:
		return map[string]any{"type": "string", "format": "ObjectId"}, nil
	case familyText:
		return map[string]any{"type": "string"}, nil
	case familyDate:
		return map[string]any{"type": "string", "format": "date"}, nil
	case familyBoolean:
		return map[string]any{"type": "boolean"}, nil
	case familyInteger:
		return map[string]any{"type": "integer"}, nil
	case familyNumber:
		return map[string]any{"type": "number"}, nil
	case familySpatial, familyUserDefined:
		return map[string]any{
			"type":   "object",
			"format": "geoJSON",
			"properties": map[string]any{
				"type":        map[string]any{"type": "string"},
				"coordinates": map[string]any{"type": "array"},
			},
		}, nil
	default:
		return nil, fmt.Errorf("column %q of type %q: %w", meta.ColumnName, meta.DataType, ErrUnsupportedType)
	}
}

var castPattern = regexp.MustCompile(`^(.*?)::`)

var objectIDGenerators = map[string]struct{}{
	"uuid_generate_v4()": {},
	"gen_random_uuid()":  {},
	"newid()":            {},
}

// DefaultValueConverter is the default heuristic for column default expressions.
func DefaultValueConverter(schemaType, schemaFormat, value string) any {
	if value == "" {
		return nil
	}
	if schemaType == "boolean" {
		return strings.EqualFold(value, "true")
	}
	if m := castPattern.FindStringSubmatch(value); m != nil {
		literal := strings.Trim(m[1], "'")
		switch schemaType {
		case "string":
			return literal
		case "number", "integer":
			return parseNumber(literal)
		default:
			return nil
		}
	}
	switch schemaType {
	case "number", "integer":
		return parseNumber(value)
	case "string":
		if schemaFormat == "date" {
			return DefaultNow
		}
		if _, ok := objectIDGenerators[strings.ToLower(value)]; ok {
			return DefaultObjectID
		}
		return value
	default:
		return value
	}
}

func parseNumber(s string) any {
	s = strings.Trim(strings.TrimSpace(s), "()")
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return nil
}
