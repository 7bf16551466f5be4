// Package kusto implements the source engine for Azure Data Explorer using
// the azkustodata query client and Kusto database cursors.
package kusto

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-kusto-go/azkustodata/kql"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/maxpert/reactivator/cfg"
	"github.com/maxpert/reactivator/source"
	"github.com/rs/zerolog/log"
)

const (
	// CursorPlaceholder marks where the cursor literal goes in incremental
	// queries
	CursorPlaceholder = "{cursor}"

	DefaultPositionQuery = "print(current_cursor())"
)

func init() {
	source.RegisterEngine(cfg.EngineKusto, func(c *cfg.SourceConfiguration) (source.Engine, error) {
		cred, err := newCredential(c.ManagedIdentity)
		if err != nil {
			return nil, err
		}
		client, err := NewClient(c.URI, cred)
		if err != nil {
			return nil, err
		}
		e, err := New(Config{
			Database:         c.Database,
			Query:            c.Query,
			IncrementalQuery: c.IncrementalQuery,
			PositionQuery:    c.PositionQuery,
		}, client)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return e, nil
	})
}

func newCredential(managedIdentity string) (azcore.TokenCredential, error) {
	if managedIdentity != "" {
		cred, err := azidentity.NewManagedIdentityCredential(&azidentity.ManagedIdentityCredentialOptions{
			ID: azidentity.ClientID(managedIdentity),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create managed identity credential: %w", err)
		}
		return cred, nil
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create default azure credential: %w", err)
	}
	return cred, nil
}

// Table is the primary result of a query with cells already converted to
// plain Go values
type Table struct {
	Columns []string
	Rows    [][]any
}

// Querier runs a KQL statement against a database
type Querier interface {
	Query(ctx context.Context, database string, stmt *kql.Builder) (*Table, error)
	Close() error
}

// Config holds configuration for an Engine
type Config struct {
	Database         string // Database the queries run against
	Query            string // Bootstrap query
	IncrementalQuery string // Defaults to Query filtered by cursor_after
	PositionQuery    string // Defaults to print(current_cursor())
}

// Engine queries a Kusto database
type Engine struct {
	config Config
	client Querier
}

// New creates a Kusto engine on top of client
func New(config Config, client Querier) (*Engine, error) {
	if client == nil {
		return nil, fmt.Errorf("kusto engine requires a client")
	}
	if config.Database == "" {
		return nil, fmt.Errorf("kusto engine requires a database")
	}
	if config.Query == "" {
		return nil, fmt.Errorf("kusto engine requires a query")
	}

	if config.IncrementalQuery == "" {
		config.IncrementalQuery = config.Query + " | where cursor_after(" + CursorPlaceholder + ")"
	}
	if config.PositionQuery == "" {
		config.PositionQuery = DefaultPositionQuery
	}

	return &Engine{config: config, client: client}, nil
}

// Bootstrap runs the configured query
func (e *Engine) Bootstrap(ctx context.Context) ([]source.Row, error) {
	table, err := e.query(ctx, kql.New("").AddUnsafe(e.config.Query))
	if err != nil {
		return nil, err
	}
	return table.rows(), nil
}

// Changes returns rows ingested after cursor
func (e *Engine) Changes(ctx context.Context, cursor string) ([]source.Row, error) {
	table, err := e.query(ctx, Statement(e.config.IncrementalQuery, cursor))
	if err != nil {
		return nil, err
	}
	return table.rows(), nil
}

// Position returns the database cursor from the first cell of the position
// query
func (e *Engine) Position(ctx context.Context) (string, error) {
	table, err := e.query(ctx, kql.New("").AddUnsafe(e.config.PositionQuery))
	if err != nil {
		return "", err
	}
	if len(table.Rows) == 0 || len(table.Rows[0]) == 0 {
		return "", fmt.Errorf("position query returned no rows")
	}

	switch v := table.Rows[0][0].(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	default:
		return fmt.Sprint(v), nil
	}
}

// Close closes the query client
func (e *Engine) Close() error {
	return e.client.Close()
}

// Statement builds an incremental query from template, adding cursor as an
// escaped string literal at every placeholder
func Statement(template, cursor string) *kql.Builder {
	parts := strings.Split(template, CursorPlaceholder)
	b := kql.New("").AddUnsafe(parts[0])
	for _, part := range parts[1:] {
		b = b.AddString(cursor).AddUnsafe(part)
	}
	return b
}

func (e *Engine) query(ctx context.Context, stmt *kql.Builder) (*Table, error) {
	start := time.Now()
	table, err := e.client.Query(ctx, e.config.Database, stmt)
	if err != nil {
		return nil, fmt.Errorf("kusto query failed: %w", err)
	}

	log.Debug().
		Str("database", e.config.Database).
		Int("rows", len(table.Rows)).
		Dur("took", time.Since(start)).
		Msg("Kusto query completed")

	return table, nil
}

// rows maps cells to column names
func (t *Table) rows() []source.Row {
	out := make([]source.Row, 0, len(t.Rows))
	for _, cells := range t.Rows {
		row := make(source.Row, len(t.Columns))
		for j, col := range t.Columns {
			if j < len(cells) {
				row[col] = cells[j]
			}
		}
		out = append(out, row)
	}
	return out
}
