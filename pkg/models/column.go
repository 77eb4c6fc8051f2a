package models

import (
	"sort"

	"go.mongodb.org/mongo-driver/bson"
)

// ColumnInfo is the information_schema description of a source column. The
// JSON names match information_schema.columns so cached metadata files stay
// readable by other tools.
type ColumnInfo struct {
	ColumnName      string `json:"column_name"`
	DataType        string `json:"data_type"`
	UDTName         string `json:"udt_name"`
	IsNullable      string `json:"is_nullable"`
	ColumnDefault   string `json:"column_default"`
	OrdinalPosition int    `json:"ordinal_position"`
}

func (c ColumnInfo) Nullable() bool {
	return c.IsNullable == "YES"
}

// IsSpatial reports whether the column holds a PostGIS geography or geometry value.
func (c ColumnInfo) IsSpatial() bool {
	return (c.DataType == "USER-DEFINED" || c.DataType == "user-defined") &&
		(c.UDTName == "geography" || c.UDTName == "geometry")
}

// TableColumns is the ordinal ordered column list of one table.
type TableColumns []ColumnInfo

// NewTableColumns builds the ordered list from a name keyed map.
func NewTableColumns(byName map[string]ColumnInfo) TableColumns {
	cols := make(TableColumns, 0, len(byName))
	for name, info := range byName {
		if info.ColumnName == "" {
			info.ColumnName = name
		}
		cols = append(cols, info)
	}
	sort.SliceStable(cols, func(i, j int) bool {
		if cols[i].OrdinalPosition != cols[j].OrdinalPosition {
			return cols[i].OrdinalPosition < cols[j].OrdinalPosition
		}
		return cols[i].ColumnName < cols[j].ColumnName
	})
	return cols
}

func (tc TableColumns) Get(name string) (ColumnInfo, bool) {
	for _, c := range tc {
		if c.ColumnName == name {
			return c, true
		}
	}
	return ColumnInfo{}, false
}

func (tc TableColumns) Names() []string {
	names := make([]string, 0, len(tc))
	for _, c := range tc {
		names = append(names, c.ColumnName)
	}
	return names
}

func (tc TableColumns) ByName() map[string]ColumnInfo {
	m := make(map[string]ColumnInfo, len(tc))
	for _, c := range tc {
		m[c.ColumnName] = c
	}
	return m
}

// ConversionContext carries everything a column converter may look at.
type ConversionContext struct {
	Value      any
	SourceType string
	Row        map[string]any
	Document   bson.M
	SourceName string
	TargetName string
	UDTName    string
}

// ConversionResult is the converted value. DocumentModified means the converter
// wrote into Document itself and the value must not be assigned.
type ConversionResult struct {
	Value            any
	DocumentModified bool
}

type ColumnConverter func(c *ConversionContext) (ConversionResult, error)
