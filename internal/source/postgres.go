package source

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/taicho/postgres-to-mongo/pkg/models"
)

const columnsQuery = `SELECT column_name, data_type, udt_name, is_nullable, column_default, ordinal_position
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

const cursorName = "ptm_cursor"

// Postgres is a source backed by one connection acquired from a pgx pool.
type Postgres struct {
	conn *pgxpool.Conn
}

func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring postgres connection: %w", err)
	}
	return &Postgres{conn: conn}, nil
}

func (p *Postgres) Columns(ctx context.Context, schema, table string) (models.TableColumns, error) {
	rows, err := p.conn.Query(ctx, columnsQuery, schema, table)
	if err != nil {
		return nil, fmt.Errorf("fetching columns of %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	cols := models.TableColumns{}
	for rows.Next() {
		var (
			info       models.ColumnInfo
			colDefault *string
			position   int32
		)
		if err := rows.Scan(&info.ColumnName, &info.DataType, &info.UDTName, &info.IsNullable, &colDefault, &position); err != nil {
			return nil, fmt.Errorf("scanning column metadata: %w", err)
		}
		if colDefault != nil {
			info.ColumnDefault = *colDefault
		}
		info.OrdinalPosition = int(position)
		cols = append(cols, info)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cols, nil
}

func (p *Postgres) Count(ctx context.Context, schema, table, where string) (int, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", QuoteQualifiedIdentifier(schema, table), whereClause(where))
	if err := p.conn.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting rows of %s.%s: %w", schema, table, err)
	}
	return int(count), nil
}

// Open declares a server side cursor inside a read only transaction.
func (p *Postgres) Open(ctx context.Context, schema, table string, columns models.TableColumns, where string) (Cursor, error) {
	tx, err := p.conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("starting cursor transaction: %w", err)
	}
	declare := fmt.Sprintf("DECLARE %s NO SCROLL CURSOR FOR %s", cursorName, SelectQuery(schema, table, columns, where))
	if _, err := tx.Exec(ctx, declare); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("declaring cursor for %s.%s: %w", schema, table, err)
	}
	return &pgCursor{tx: tx}, nil
}

func (p *Postgres) Release(_ context.Context) error {
	if p.conn != nil {
		p.conn.Release()
		p.conn = nil
	}
	return nil
}

// SelectQuery selects every column verbatim except spatial ones, which are
// converted to GeoJSON text on the server.
func SelectQuery(schema, table string, columns models.TableColumns, where string) string {
	selects := make([]string, 0, len(columns))
	for _, c := range columns {
		name := pq.QuoteIdentifier(c.ColumnName)
		if c.IsSpatial() {
			selects = append(selects, fmt.Sprintf("ST_AsGeoJSON(%s) AS %s", name, name))
			continue
		}
		selects = append(selects, name)
	}
	return fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(selects, ","), QuoteQualifiedIdentifier(schema, table), whereClause(where))
}

func whereClause(where string) string {
	if strings.TrimSpace(where) == "" {
		return ""
	}
	return " WHERE " + where
}

func QuoteQualifiedIdentifier(schema, table string) string {
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
}

type pgCursor struct {
	tx     pgx.Tx
	closed bool
}

func (c *pgCursor) Next(ctx context.Context, n int) ([]Row, error) {
	if c.closed {
		return nil, errors.New("cursor is closed")
	}
	rows, err := c.tx.Query(ctx, fmt.Sprintf("FETCH FORWARD %d FROM %s", n, cursorName))
	if err != nil {
		return nil, fmt.Errorf("fetching rows: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := make([]Row, 0, n)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		row := make(Row, len(fields))
		for i, f := range fields {
			row[f.Name] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pgCursor) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	if _, err := c.tx.Exec(ctx, "CLOSE "+cursorName); err != nil {
		_ = c.tx.Rollback(ctx)
		return fmt.Errorf("closing cursor: %w", err)
	}
	return c.tx.Commit(ctx)
}

// normalizeValue maps pgx specific values onto plain Go values the converters understand.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case [16]uint8:
		return uuid.UUID(t).String()
	case pgtype.Numeric:
		if !t.Valid {
			return nil
		}
		if t.NaN {
			return nil
		}
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return numericString(t)
		}
		return f.Float64
	case pgtype.Time:
		if !t.Valid {
			return nil
		}
		return time.Unix(0, 0).UTC().Add(time.Duration(t.Microseconds) * time.Microsecond)
	case []byte:
		return t
	default:
		return v
	}
}

func numericString(n pgtype.Numeric) string {
	if n.Int == nil {
		return "0"
	}
	r := new(big.Rat).SetInt(n.Int)
	if n.Exp > 0 {
		r.Mul(r, new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil)))
	} else if n.Exp < 0 {
		r.Quo(r, new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-n.Exp)), nil)))
	}
	return r.FloatString(int(max(0, -n.Exp)))
}
