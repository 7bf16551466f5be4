package bigquery

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
)

func TestFormatPosition(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.FixedZone("X", 3600))

	tests := []struct {
		name  string
		value bigquery.Value
		want  string
	}{
		{"nil", nil, ""},
		{"string", "abc", "abc"},
		{"int", int64(42), "42"},
		{"timestamp", ts, "2024-03-01T11:30:00.123456789Z"},
		{"datetime", civil.DateTimeOf(time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)), "2024-03-01T12:30:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatPosition(tt.value))
		})
	}
}

func TestToRow(t *testing.T) {
	row := ToRow(map[string]bigquery.Value{"id": "a", "n": int64(1)})
	assert.Equal(t, "a", row["id"])
	assert.Equal(t, int64(1), row["n"])
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"missing project", Config{Query: "q", IncrementalQuery: "i", PositionQuery: "p"}},
		{"missing query", Config{ProjectID: "p", IncrementalQuery: "i", PositionQuery: "p"}},
		{"missing incremental", Config{ProjectID: "p", Query: "q", PositionQuery: "p"}},
		{"missing position", Config{ProjectID: "p", Query: "q", IncrementalQuery: "i"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), tt.config)
			assert.Error(t, err)
		})
	}
}
