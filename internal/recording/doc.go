// Package recording persists the samples taken by the change-detection
// monitor and the run records they belong to.
//
// The monitor only needs Sink.Append and the RunLog pair. SQLiteStore
// implements both plus the read path used by the HTTP API. Tee fans a
// batch out to secondary sinks such as InfluxMirror without letting their
// failures affect the primary store.
package recording
