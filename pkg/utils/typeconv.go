package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/taicho/postgres-to-mongo/pkg/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrUnsupportedType is returned for source column types without a registered converter.
var ErrUnsupportedType = errors.New("unsupported type")

const objectIDHexLength = 24

// ConverterFor returns the default value converter for a source column.
func ConverterFor(meta models.ColumnInfo) (models.ColumnConverter, error) {
	switch typeFamily(meta) {
	case familyJSON, familyText, familyBoolean, familyInteger, familyNumber:
		return passThrough, nil
	case familyUUID:
		return convertUUID, nil
	case familyDate:
		return convertDate, nil
	case familySpatial:
		return convertGeoJSON, nil
	case familyUserDefined:
		return func(*models.ConversionContext) (models.ConversionResult, error) {
			return models.ConversionResult{}, nil
		}, nil
	default:
		return nil, fmt.Errorf("column %q of type %q: %w", meta.ColumnName, meta.DataType, ErrUnsupportedType)
	}
}

type family int

const (
	familyUnknown family = iota
	familyJSON
	familyUUID
	familyText
	familyDate
	familyBoolean
	familyInteger
	familyNumber
	familySpatial
	familyUserDefined
)

func typeFamily(meta models.ColumnInfo) family {
	switch strings.ToLower(meta.DataType) {
	case "json", "jsonb":
		return familyJSON
	case "uuid", "uniqueidentifier":
		return familyUUID
	case "text", "character varying", "character", "varchar", "nvarchar", "char", "nchar", "ntext", "citext":
		return familyText
	case "date", "time", "time without time zone", "time with time zone",
		"timestamp", "timestamp with time zone", "timestamp without time zone",
		"datetime", "datetime2", "smalldatetime", "datetimeoffset":
		return familyDate
	case "boolean", "bit":
		return familyBoolean
	case "integer", "smallint", "bigint", "smallserial", "serial", "bigserial", "int", "tinyint":
		return familyInteger
	case "decimal", "numeric", "real", "double precision", "float", "money", "smallmoney":
		return familyNumber
	case "user-defined", "geography", "geometry":
		if meta.UDTName == "geography" || meta.UDTName == "geometry" {
			return familySpatial
		}
		return familyUserDefined
	default:
		return familyUnknown
	}
}

func passThrough(c *models.ConversionContext) (models.ConversionResult, error) {
	return models.ConversionResult{Value: c.Value}, nil
}

func convertUUID(c *models.ConversionContext) (models.ConversionResult, error) {
	var value any
	if c.Value != nil {
		oid, err := UUIDToObjectID(c.Value)
		if err != nil {
			return models.ConversionResult{}, fmt.Errorf("column %q: %w", c.SourceName, err)
		}
		value = oid
	}
	if c.SourceName == "id" && c.TargetName == c.SourceName {
		c.Document["_id"] = value
		return models.ConversionResult{DocumentModified: true}, nil
	}
	return models.ConversionResult{Value: value}, nil
}

func convertDate(c *models.ConversionContext) (models.ConversionResult, error) {
	if c.Value == nil {
		return models.ConversionResult{}, nil
	}
	t, err := ConvertDateTime(c.Value, "")
	if err != nil {
		return models.ConversionResult{}, fmt.Errorf("column %q: %w", c.SourceName, err)
	}
	return models.ConversionResult{Value: t}, nil
}

func convertGeoJSON(c *models.ConversionContext) (models.ConversionResult, error) {
	var raw []byte
	switch v := c.Value.(type) {
	case nil:
		return models.ConversionResult{}, nil
	case string:
		if v == "" {
			return models.ConversionResult{}, nil
		}
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		// already decoded by the driver
		return models.ConversionResult{Value: v}, nil
	}
	var geo map[string]any
	if err := json.Unmarshal(raw, &geo); err != nil {
		return models.ConversionResult{}, fmt.Errorf("column %q: invalid GeoJSON: %w", c.SourceName, err)
	}
	return models.ConversionResult{Value: geo}, nil
}

// UUIDToObjectIDString strips dashes and fits the value to the 24 hex
// characters of an ObjectID.
func UUIDToObjectIDString(s string) string {
	s = strings.ReplaceAll(s, "-", "")
	if len(s) >= objectIDHexLength {
		return s[:objectIDHexLength]
	}
	return s + strings.Repeat("0", objectIDHexLength-len(s))
}

// UUIDToObjectID derives an ObjectID from a UUID given as text or raw bytes.
func UUIDToObjectID(v any) (primitive.ObjectID, error) {
	var s string
	switch u := v.(type) {
	case string:
		s = u
	case []byte:
		if len(u) == 16 {
			s = uuid.UUID(u).String()
		} else {
			s = string(u)
		}
	case [16]byte:
		s = uuid.UUID(u).String()
	case uuid.UUID:
		s = u.String()
	case primitive.ObjectID:
		return u, nil
	default:
		return primitive.NilObjectID, fmt.Errorf("cannot convert %T to ObjectID", v)
	}
	oid, err := primitive.ObjectIDFromHex(strings.ToLower(UUIDToObjectIDString(s)))
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("invalid uuid %q: %w", s, err)
	}
	return oid, nil
}

// LegacyIDConverter stores the raw source key under the legacy field. UUID
// keys also seed the document _id so related rows keep a stable identifier.
func LegacyIDConverter(meta models.ColumnInfo) models.ColumnConverter {
	isUUID := typeFamily(meta) == familyUUID
	return func(c *models.ConversionContext) (models.ConversionResult, error) {
		if c.Value == nil {
			return models.ConversionResult{}, nil
		}
		value := c.Value
		if isUUID {
			oid, err := UUIDToObjectID(c.Value)
			if err != nil {
				return models.ConversionResult{}, fmt.Errorf("column %q: %w", c.SourceName, err)
			}
			if _, ok := c.Document["_id"]; !ok {
				c.Document["_id"] = oid
			}
			if s, ok := uuidString(c.Value); ok {
				value = s
			}
		}
		return models.ConversionResult{Value: value}, nil
	}
}

func uuidString(v any) (string, bool) {
	switch u := v.(type) {
	case string:
		return u, true
	case [16]byte:
		return uuid.UUID(u).String(), true
	case uuid.UUID:
		return u.String(), true
	case []byte:
		if len(u) == 16 {
			return uuid.UUID(u).String(), true
		}
		return string(u), true
	default:
		return "", false
	}
}

// ConvertDateTime coerces driver values and textual timestamps into time.Time.
func ConvertDateTime(val interface{}, format string) (interface{}, error) {
	switch v := val.(type) {
	case time.Time:
		return v, nil
	case primitive.DateTime:
		return v.Time(), nil
	case string:
		formats := []string{
			time.RFC3339,
			time.RFC3339Nano,
			"2006-01-02 15:04:05.999999999Z07:00",
			"2006-01-02 15:04:05.999999999Z07",
			"2006-01-02 15:04:05.999999999",
			"2006-01-02",
			"15:04:05.999999999",
		}
		if format != "" {
			formats = append([]string{format}, formats...)
		}
		for _, f := range formats {
			if t, err := time.Parse(f, v); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("unable to parse datetime: %s", v)
	case []byte:
		return ConvertDateTime(string(v), format)
	case int64:
		return time.UnixMilli(v).UTC(), nil
	default:
		return nil, fmt.Errorf("unable to convert %T to datetime", val)
	}
}
