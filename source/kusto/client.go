package kusto

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/Azure/azure-kusto-go/azkustodata"
	"github.com/Azure/azure-kusto-go/azkustodata/kql"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/goccy/go-json"
)

var errNoTables = errors.New("kusto response has no result tables")

// Client is the azkustodata backed Querier
type Client struct {
	client *azkustodata.Client
}

// NewClient connects to the cluster at uri authenticating with cred
func NewClient(uri string, cred azcore.TokenCredential) (*Client, error) {
	if uri == "" {
		return nil, fmt.Errorf("kusto engine requires a cluster uri")
	}

	kcsb := azkustodata.NewConnectionStringBuilder(uri).WithTokenCredential(cred)
	client, err := azkustodata.New(kcsb)
	if err != nil {
		return nil, fmt.Errorf("failed to create kusto client: %w", err)
	}
	return &Client{client: client}, nil
}

// Query runs stmt and returns the primary result table
func (c *Client) Query(ctx context.Context, database string, stmt *kql.Builder) (*Table, error) {
	dataset, err := c.client.Query(ctx, database, stmt)
	if err != nil {
		return nil, err
	}

	tables := dataset.Tables()
	if len(tables) == 0 {
		return nil, errNoTables
	}
	primary := tables[0]

	out := &Table{}
	for _, col := range primary.Columns() {
		out.Columns = append(out.Columns, col.Name())
	}
	for _, row := range primary.Rows() {
		values := row.Values()
		cells := make([]any, len(values))
		for i, v := range values {
			cells[i] = Cell(v.GetValue())
		}
		out.Rows = append(out.Rows, cells)
	}
	return out, nil
}

// Close releases the client's connections
func (c *Client) Close() error {
	return c.client.Close()
}

// Cell converts a Kusto value into what row properties carry: nulls become
// nil, integers int64, datetimes RFC3339 strings, dynamic values decoded
// JSON and decimals, guids and timespans their string form.
func Cell(v any) any {
	if v == nil {
		return nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		v = rv.Elem().Interface()
	}

	switch t := v.(type) {
	case bool, int64, float64, string:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float32:
		return float64(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return t.String()
	case []byte:
		if len(t) == 0 {
			return nil
		}
		dec := json.NewDecoder(bytes.NewReader(t))
		dec.UseNumber()
		var decoded any
		if err := dec.Decode(&decoded); err != nil {
			return string(t)
		}
		return decoded
	case fmt.Stringer:
		return t.String()
	default:
		return t
	}
}
