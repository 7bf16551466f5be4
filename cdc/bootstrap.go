package cdc

import (
	"context"
	"errors"
	"time"

	"github.com/maxpert/reactivator/source"
	"github.com/maxpert/reactivator/telemetry"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// ErrNoLabels is returned by Acquire when no usable label was requested
var ErrNoLabels = errors.New("at least one node label is required")

// SnapshotSource runs the bootstrap query
type SnapshotSource interface {
	Bootstrap(ctx context.Context) ([]source.Row, error)
}

// AcquireResult is the bootstrap response
type AcquireResult struct {
	Nodes []Node     `json:"nodes"`
	Rels  []Relation `json:"rels"`
}

// Bootstrapper produces the full snapshot of the source for a label set
type Bootstrapper struct {
	source     SnapshotSource
	identity   string
	prefix     string
	onComplete func()
}

// NewBootstrapper creates a bootstrapper. onComplete runs after every
// successful Acquire; it is how polling gets started.
func NewBootstrapper(src SnapshotSource, identity, prefix string, onComplete func()) *Bootstrapper {
	return &Bootstrapper{
		source:     src,
		identity:   identity,
		prefix:     prefix,
		onComplete: onComplete,
	}
}

// Acquire runs the snapshot query and attaches every row to every label.
// Duplicate and empty labels are dropped; nodes are ordered label-major in
// the order the labels were first given.
func (b *Bootstrapper) Acquire(ctx context.Context, labels []string) (*AcquireResult, error) {
	labels = lo.Uniq(lo.Compact(labels))
	if len(labels) == 0 {
		return nil, ErrNoLabels
	}

	start := time.Now()
	rows, err := b.source.Bootstrap(ctx)
	if err != nil {
		telemetry.BootstrapTotal.With("failed").Inc()
		return nil, err
	}

	nodes := make([]Node, 0, len(labels)*len(rows))
	for _, label := range labels {
		for _, row := range rows {
			nodes = append(nodes, Node{
				ID:         NodeID(b.prefix, row[b.identity]),
				Labels:     []string{label},
				Properties: row,
			})
		}
	}

	telemetry.BootstrapTotal.With("success").Inc()
	telemetry.BootstrapNodesTotal.Add(float64(len(nodes)))
	log.Info().
		Strs("labels", labels).
		Int("rows", len(rows)).
		Int("nodes", len(nodes)).
		Dur("took", time.Since(start)).
		Msg("Bootstrap completed")

	if b.onComplete != nil {
		b.onComplete()
	}

	return &AcquireResult{Nodes: nodes, Rels: []Relation{}}, nil
}
