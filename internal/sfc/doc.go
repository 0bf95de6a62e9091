// Package sfc executes sequential function charts.
//
// A chart is a graph of nodes joined by "must finish before" edges. Only
// setvalue and wait nodes do work; every other kind counts as finished
// when a run starts. The Manager owns at most one live run per design:
// starting a run for a design that is already running cancels the old run
// and waits for its teardown, including its change-detection monitor,
// before the new run is installed.
//
// Within a run the scheduler launches every node whose predecessors have
// all finished, waits for at least one to complete, and repeats. Nodes
// that fail still count as finished for their successors. Cancelled nodes
// never do.
//
// A cycle among executable nodes leaves those nodes waiting forever. The
// run stalls until it is cancelled; no cycle detection is attempted.
package sfc
