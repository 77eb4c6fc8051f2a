package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/taicho/postgres-to-mongo/pkg/models"
)

const sqlServerColumnsQuery = `SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_DEFAULT, ORDINAL_POSITION
FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
ORDER BY ORDINAL_POSITION`

// SQLServer is a source backed by a dedicated connection of a database/sql pool.
type SQLServer struct {
	conn *sql.Conn
}

func NewSQLServer(ctx context.Context, db *sql.DB) (*SQLServer, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring sql server connection: %w", err)
	}
	return &SQLServer{conn: conn}, nil
}

func (s *SQLServer) Columns(ctx context.Context, schema, table string) (models.TableColumns, error) {
	rows, err := s.conn.QueryContext(ctx, sqlServerColumnsQuery, schema, table)
	if err != nil {
		return nil, fmt.Errorf("fetching columns of %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	cols := models.TableColumns{}
	for rows.Next() {
		var (
			info       models.ColumnInfo
			colDefault sql.NullString
		)
		if err := rows.Scan(&info.ColumnName, &info.DataType, &info.IsNullable, &colDefault, &info.OrdinalPosition); err != nil {
			return nil, fmt.Errorf("scanning column metadata: %w", err)
		}
		info.ColumnDefault = unwrapSQLServerDefault(colDefault.String)
		cols = append(cols, info)
	}
	return cols, rows.Err()
}

func (s *SQLServer) Count(ctx context.Context, schema, table, where string) (int, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT_BIG(*) FROM %s%s", QuoteSQLServerQualified(schema, table), whereClause(where))
	if err := s.conn.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting rows of %s.%s: %w", schema, table, err)
	}
	return int(count), nil
}

func (s *SQLServer) Open(ctx context.Context, schema, table string, columns models.TableColumns, where string) (Cursor, error) {
	names := make([]string, 0, len(columns))
	for _, c := range columns {
		names = append(names, QuoteSQLServerIdentifier(c.ColumnName))
	}
	query := fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(names, ","), QuoteSQLServerQualified(schema, table), whereClause(where))
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying %s.%s: %w", schema, table, err)
	}
	cols, err := rows.ColumnTypes()
	if err != nil {
		rows.Close()
		return nil, err
	}
	return &sqlCursor{rows: rows, columns: cols}, nil
}

func (s *SQLServer) Release(_ context.Context) error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func QuoteSQLServerIdentifier(s string) string {
	return "[" + strings.ReplaceAll(s, "]", "]]") + "]"
}

func QuoteSQLServerQualified(schema, table string) string {
	return QuoteSQLServerIdentifier(schema) + "." + QuoteSQLServerIdentifier(table)
}

// unwrapSQLServerDefault strips the parentheses SQL Server wraps around
// default constraints, e.g. ((0)) or (getdate()).
func unwrapSQLServerDefault(s string) string {
	for len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' && outerParensMatch(s) {
		s = s[1 : len(s)-1]
	}
	return s
}

func outerParensMatch(s string) bool {
	depth := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}

type sqlCursor struct {
	rows    *sql.Rows
	columns []*sql.ColumnType
	done    bool
}

func (c *sqlCursor) Next(_ context.Context, n int) ([]Row, error) {
	if c.done {
		return nil, nil
	}
	out := make([]Row, 0, n)
	for len(out) < n {
		if !c.rows.Next() {
			c.done = true
			break
		}
		values := make([]any, len(c.columns))
		pointers := make([]any, len(c.columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := c.rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(Row, len(c.columns))
		for i, col := range c.columns {
			v, err := sqlServerValue(col.DatabaseTypeName(), values[i])
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", col.Name(), err)
			}
			row[col.Name()] = v
		}
		out = append(out, row)
	}
	if err := c.rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sqlCursor) Close(_ context.Context) error {
	return c.rows.Close()
}

func sqlServerValue(dbType string, v any) (any, error) {
	b, ok := v.([]byte)
	if !ok {
		return v, nil
	}
	switch strings.ToUpper(dbType) {
	case "UNIQUEIDENTIFIER":
		var u mssql.UniqueIdentifier
		if err := u.Scan(b); err != nil {
			return nil, err
		}
		return u.String(), nil
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		f, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %s value %q: %w", strings.ToLower(dbType), b, err)
		}
		return f, nil
	case "VARBINARY", "BINARY", "IMAGE":
		return b, nil
	case "GEOGRAPHY", "GEOMETRY":
		return nil, errors.New("spatial columns are not supported for sql server sources")
	default:
		return string(b), nil
	}
}
