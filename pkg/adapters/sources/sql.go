package sources

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aretw0/osdl/pkg/domain"
	"github.com/spf13/cast"
)

// SQLType is the source type SQL is usually registered under.
const SQLType = domain.SourceSQL

// SQL runs the requirement query against a database and returns its rows as
// a list of objects keyed by column name. Positional arguments come from the
// args variable.
//
// Drivers are not imported here; the binary registers the ones it supports.
type SQL struct {
	db      *sql.DB
	maxRows int
}

// SQLOption configures an SQL source.
type SQLOption func(*SQL)

// WithMaxRows caps the rows returned per query. Zero means no cap.
func WithMaxRows(n int) SQLOption {
	return func(s *SQL) {
		s.maxRows = n
	}
}

// NewSQL wraps an open database handle.
func NewSQL(db *sql.DB, opts ...SQLOption) *SQL {
	s := &SQL{db: db, maxRows: 1000}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenSQL opens and pings a database with a registered driver.
func OpenSQL(ctx context.Context, driver, dsn string, opts ...SQLOption) (*SQL, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}
	return NewSQL(db, opts...), nil
}

// Close closes the underlying handle.
func (s *SQL) Close() error {
	return s.db.Close()
}

// Fetch implements ports.DataSource. With Queries set it returns a map of
// statement to rows.
func (s *SQL) Fetch(ctx context.Context, src domain.SourceDescriptor) (any, error) {
	var args []any
	if raw, ok := src.Variables["args"]; ok && raw != nil {
		var err error
		if args, err = cast.ToSliceE(raw); err != nil {
			return nil, fmt.Errorf("args variable must be a list: %w", err)
		}
	}
	if len(src.Queries) > 0 {
		out := make(map[string]any, len(src.Queries))
		for _, q := range src.Queries {
			rows, err := s.query(ctx, q, args)
			if err != nil {
				return nil, err
			}
			out[q] = rows
		}
		return out, nil
	}
	return s.query(ctx, src.Query, args)
}

func (s *SQL) query(ctx context.Context, q string, args []any) ([]any, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []any{}
	for rows.Next() {
		if s.maxRows > 0 && len(out) == s.maxRows {
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = columnValue(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// columnValue maps driver values onto the types expressions work with.
func columnValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case float32:
		return float64(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return v
	}
}
