// Package bigquery implements the source engine for Google BigQuery. The
// incremental query receives the cursor as the @cursor named parameter.
package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/maxpert/reactivator/cfg"
	"github.com/maxpert/reactivator/source"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// CursorParam is the named parameter bound to the cursor in incremental queries
const CursorParam = "cursor"

func init() {
	source.RegisterEngine(cfg.EngineBigQuery, func(c *cfg.SourceConfiguration) (source.Engine, error) {
		var opts []option.ClientOption
		if c.URI != "" {
			// Emulator endpoints do not authenticate
			opts = append(opts, option.WithEndpoint(c.URI), option.WithoutAuthentication())
		}
		return New(context.Background(), Config{
			ProjectID:        c.ProjectID,
			Query:            c.Query,
			IncrementalQuery: c.IncrementalQuery,
			PositionQuery:    c.PositionQuery,
		}, opts...)
	})
}

// Config holds configuration for an Engine
type Config struct {
	ProjectID        string
	Query            string // Bootstrap query
	IncrementalQuery string // Must reference @cursor
	PositionQuery    string // First column of the first row is the position
}

// Engine queries BigQuery
type Engine struct {
	config Config
	client *bigquery.Client
}

// New creates a BigQuery engine
func New(ctx context.Context, config Config, opts ...option.ClientOption) (*Engine, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	client, err := bigquery.NewClient(ctx, config.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}

	return &Engine{config: config, client: client}, nil
}

func (c Config) validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("bigquery engine requires a project id")
	}
	if c.Query == "" || c.IncrementalQuery == "" || c.PositionQuery == "" {
		return fmt.Errorf("bigquery engine requires query, incremental_query and position_query")
	}
	return nil
}

// Bootstrap runs the configured query
func (e *Engine) Bootstrap(ctx context.Context) ([]source.Row, error) {
	return e.read(ctx, e.client.Query(e.config.Query))
}

// Changes runs the incremental query with cursor bound to @cursor
func (e *Engine) Changes(ctx context.Context, cursor string) ([]source.Row, error) {
	q := e.client.Query(e.config.IncrementalQuery)
	q.Parameters = []bigquery.QueryParameter{{Name: CursorParam, Value: cursor}}
	return e.read(ctx, q)
}

// Position runs the position query and returns its first cell
func (e *Engine) Position(ctx context.Context) (string, error) {
	it, err := e.client.Query(e.config.PositionQuery).Read(ctx)
	if err != nil {
		return "", err
	}

	var values []bigquery.Value
	err = it.Next(&values)
	if err == iterator.Done {
		return "", fmt.Errorf("position query returned no rows")
	}
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "", fmt.Errorf("position query returned no columns")
	}
	return FormatPosition(values[0]), nil
}

// Close closes the BigQuery client
func (e *Engine) Close() error {
	return e.client.Close()
}

func (e *Engine) read(ctx context.Context, q *bigquery.Query) ([]source.Row, error) {
	start := time.Now()
	it, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}

	var rows []source.Row
	for {
		var values map[string]bigquery.Value
		err := it.Next(&values)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, ToRow(values))
	}

	log.Debug().
		Str("project", e.config.ProjectID).
		Int("rows", len(rows)).
		Dur("took", time.Since(start)).
		Msg("BigQuery query completed")

	return rows, nil
}

// ToRow converts a BigQuery row to a source row
func ToRow(values map[string]bigquery.Value) source.Row {
	row := make(source.Row, len(values))
	for k, v := range values {
		row[k] = v
	}
	return row
}

// FormatPosition renders a position cell so it round-trips through @cursor.
// Timestamps use RFC 3339 with nanoseconds.
func FormatPosition(v bigquery.Value) string {
	switch p := v.(type) {
	case nil:
		return ""
	case string:
		return p
	case time.Time:
		return p.UTC().Format(time.RFC3339Nano)
	case civil.DateTime:
		return p.String()
	default:
		return fmt.Sprint(p)
	}
}
