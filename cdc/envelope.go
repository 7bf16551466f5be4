package cdc

import (
	"fmt"

	"github.com/maxpert/reactivator/source"
)

// Op is the kind of change an envelope describes
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// SourceTable is the table name every change envelope reports
const SourceTable = "node"

// Node is an entity record
type Node struct {
	ID         string     `json:"id"`
	Labels     []string   `json:"labels"`
	Properties source.Row `json:"properties"`
}

// Relation is an edge between two nodes. Sources of this kind never produce
// any.
type Relation struct {
	ID         string     `json:"id"`
	Labels     []string   `json:"labels"`
	StartID    string     `json:"startId"`
	EndID      string     `json:"endId"`
	Properties source.Row `json:"properties"`
}

// SourceInfo identifies where and when a change was captured
type SourceInfo struct {
	DB    string `json:"db"`
	Table string `json:"table"`
	LSN   int64  `json:"lsn"`   // Capture time in whole seconds, never decreasing
	TsNs  int64  `json:"ts_ns"` // Capture time in nanoseconds
}

// Payload carries the before and after images of a change
type Payload struct {
	Source SourceInfo     `json:"source"`
	Before map[string]any `json:"before"`
	After  Node           `json:"after"`
}

// Envelope is one change event as published to the bus
type Envelope struct {
	Op                 Op      `json:"op"`
	Payload            Payload `json:"payload"`
	ReactivatorStartNs int64   `json:"reactivatorStart_ns"`
	ReactivatorEndNs   int64   `json:"reactivatorEnd_ns"`
}

// Key returns the bus partition key, the id of the changed entity
func (e Envelope) Key() string {
	return e.Payload.After.ID
}

// NodeID formats an entity id as <prefix>.<value>
func NodeID(prefix string, value any) string {
	return prefix + "." + fmt.Sprint(value)
}
