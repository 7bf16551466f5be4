// Package cdc implements the incremental change-capture engine.
//
// A Bootstrapper answers the one-shot snapshot request and then starts the
// Scheduler. Each scheduler tick loads the cursor through the
// CursorManager, queries rows after it, probes the source's new position,
// encodes every row into an Envelope, publishes the envelopes in result
// order and finally commits the probed position. A failed tick commits
// nothing, so the next tick re-reads the same rows (at-least-once).
//
// Basic usage:
//
//	cursors := cdc.NewCursorManager(store, "database_cursor", executor)
//	sched, _ := cdc.NewScheduler(cdc.SchedulerConfig{
//	    Source:    executor,
//	    Cursors:   cursors,
//	    Encoder:   cdc.NewEncoder("my-source", "Events", "id", hlc.NewClock()),
//	    Publisher: pub,
//	    Topic:     "my-source-change",
//	    Interval:  10 * time.Second,
//	})
//	boot := cdc.NewBootstrapper(executor, "id", "kusto", func() { sched.Start(ctx) })
//	result, err := boot.Acquire(ctx, []string{"Person"})
package cdc
