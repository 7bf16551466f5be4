package cdc

import (
	"github.com/maxpert/reactivator/hlc"
	"github.com/maxpert/reactivator/source"
)

// Encoder maps source rows to insert envelopes. Apart from timestamps its
// output depends only on the row.
type Encoder struct {
	sourceID string
	table    string
	identity string
	clock    *hlc.Clock
}

// NewEncoder creates an encoder for rows of table keyed by identity
func NewEncoder(sourceID, table, identity string, clock *hlc.Clock) *Encoder {
	if clock == nil {
		clock = hlc.NewClock()
	}
	return &Encoder{
		sourceID: sourceID,
		table:    table,
		identity: identity,
		clock:    clock,
	}
}

// Now returns the encoder's current capture time
func (e *Encoder) Now() hlc.Timestamp {
	return e.clock.Now()
}

// Encode builds the envelope for row. startedNs marks when processing of the
// row began; zero means now.
func (e *Encoder) Encode(row source.Row, startedNs int64) Envelope {
	captured := e.clock.Now()
	if startedNs == 0 {
		startedNs = captured.Nanos()
	}

	env := Envelope{
		Op: OpInsert,
		Payload: Payload{
			Source: SourceInfo{
				DB:    e.sourceID,
				Table: SourceTable,
				LSN:   captured.Seconds(),
				TsNs:  captured.Nanos(),
			},
			Before: map[string]any{},
			After: Node{
				ID:         NodeID(e.table, row[e.identity]),
				Labels:     []string{e.table},
				Properties: row,
			},
		},
		ReactivatorStartNs: startedNs,
	}
	env.ReactivatorEndNs = e.clock.Now().Nanos()

	return env
}
