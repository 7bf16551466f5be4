// Package sqldb implements source engines for MySQL, PostgreSQL and SQLite.
// Queries are generated from a table and a monotonically increasing cursor
// column unless they are configured explicitly, in which case the
// incremental query binds the cursor as :cursor.
package sqldb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/maxpert/reactivator/cfg"
	"github.com/maxpert/reactivator/source"
	"github.com/rs/zerolog/log"
)

// CursorParam is the named parameter bound to the cursor in configured
// incremental queries
const CursorParam = "cursor"

// goqu dialect per database/sql driver name
var dialects = map[string]string{
	cfg.EngineMySQL:    "mysql",
	cfg.EnginePostgres: "postgres",
	cfg.EngineSQLite:   "sqlite3",
}

func init() {
	for driver := range dialects {
		source.RegisterEngine(driver, func(c *cfg.SourceConfiguration) (source.Engine, error) {
			return New(Config{
				Driver:           c.Engine,
				DSN:              c.URI,
				Table:            c.Table,
				CursorColumn:     c.CursorColumn,
				Query:            c.Query,
				IncrementalQuery: c.IncrementalQuery,
				PositionQuery:    c.PositionQuery,
			})
		})
	}
}

// Config holds configuration for an Engine
type Config struct {
	Driver           string // mysql, pgx or sqlite3
	DSN              string
	Table            string
	CursorColumn     string // Drives generated queries
	Query            string // Bootstrap query
	IncrementalQuery string // Must bind :cursor
	PositionQuery    string // First column of the first row is the position
}

type statement struct {
	sql  string
	args []any
}

// Engine queries a SQL database through sqlx
type Engine struct {
	db          *sqlx.DB
	driver      string
	bootstrap   statement
	incremental string
	named       bool
	position    statement
}

// New opens the database and prepares the engine's queries
func New(config Config) (*Engine, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("%s engine requires a dsn", config.Driver)
	}

	db, err := sqlx.Open(config.Driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", config.Driver, err)
	}

	e, err := NewWithDB(db, config)
	if err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

// NewWithDB prepares an engine over an open database
func NewWithDB(db *sqlx.DB, config Config) (*Engine, error) {
	dialect, ok := dialects[config.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported sql driver: %s", config.Driver)
	}

	e := &Engine{db: db, driver: config.Driver}
	gen := goqu.Dialect(dialect)

	if config.Query != "" {
		e.bootstrap = statement{sql: config.Query}
	} else {
		if config.Table == "" || config.CursorColumn == "" {
			return nil, fmt.Errorf("table and cursor column are required to generate the bootstrap query")
		}
		sql, args, err := gen.From(config.Table).Order(goqu.C(config.CursorColumn).Asc()).ToSQL()
		if err != nil {
			return nil, fmt.Errorf("failed to build bootstrap query: %w", err)
		}
		e.bootstrap = statement{sql: sql, args: args}
	}

	if config.IncrementalQuery != "" {
		e.incremental = config.IncrementalQuery
		e.named = true
	} else {
		if config.Table == "" || config.CursorColumn == "" {
			return nil, fmt.Errorf("table and cursor column are required to generate the incremental query")
		}
		sql, _, err := gen.From(config.Table).
			Where(goqu.C(config.CursorColumn).Gt("")).
			Order(goqu.C(config.CursorColumn).Asc()).
			Prepared(true).
			ToSQL()
		if err != nil {
			return nil, fmt.Errorf("failed to build incremental query: %w", err)
		}
		e.incremental = sql
	}

	if config.PositionQuery != "" {
		e.position = statement{sql: config.PositionQuery}
	} else {
		if config.Table == "" || config.CursorColumn == "" {
			return nil, fmt.Errorf("table and cursor column are required to generate the position query")
		}
		sql, args, err := gen.From(config.Table).Select(goqu.MAX(config.CursorColumn)).ToSQL()
		if err != nil {
			return nil, fmt.Errorf("failed to build position query: %w", err)
		}
		e.position = statement{sql: sql, args: args}
	}

	log.Debug().
		Str("driver", config.Driver).
		Str("bootstrap", e.bootstrap.sql).
		Str("incremental", e.incremental).
		Str("position", e.position.sql).
		Msg("SQL source queries prepared")

	return e, nil
}

// Bootstrap runs the snapshot query
func (e *Engine) Bootstrap(ctx context.Context) ([]source.Row, error) {
	return e.read(ctx, e.bootstrap.sql, e.bootstrap.args...)
}

// Changes returns rows whose cursor column is greater than cursor
func (e *Engine) Changes(ctx context.Context, cursor string) ([]source.Row, error) {
	if !e.named {
		return e.read(ctx, e.incremental, cursor)
	}

	query, args, err := sqlx.Named(e.incremental, map[string]any{CursorParam: cursor})
	if err != nil {
		return nil, fmt.Errorf("failed to bind cursor: %w", err)
	}
	return e.read(ctx, e.db.Rebind(query), args...)
}

// Position returns the first cell of the position query. An empty table
// yields an empty position.
func (e *Engine) Position(ctx context.Context) (string, error) {
	var v any
	if err := e.db.QueryRowxContext(ctx, e.position.sql, e.position.args...).Scan(&v); err != nil {
		return "", err
	}
	return FormatValue(v), nil
}

// Close closes the database
func (e *Engine) Close() error {
	return e.db.Close()
}

func (e *Engine) read(ctx context.Context, query string, args ...any) ([]source.Row, error) {
	rows, err := e.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []source.Row
	for rows.Next() {
		values := make(map[string]any)
		if err := rows.MapScan(values); err != nil {
			return nil, err
		}
		for k, v := range values {
			if b, ok := v.([]byte); ok {
				values[k] = string(b)
			}
		}
		out = append(out, values)
	}
	return out, rows.Err()
}

// FormatValue renders a scanned cell as a cursor string
func FormatValue(v any) string {
	switch p := v.(type) {
	case nil:
		return ""
	case string:
		return p
	case []byte:
		return string(p)
	case int64:
		return strconv.FormatInt(p, 10)
	case float64:
		return strconv.FormatFloat(p, 'f', -1, 64)
	case time.Time:
		return p.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(p)
	}
}
