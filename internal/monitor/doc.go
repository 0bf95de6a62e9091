// Package monitor records variable changes while a chart runs.
//
// A Session polls every tracked variable at a fixed interval, compares each
// reading with the last one seen in the same session, and appends a Sample
// for every first observation or change. Sessions run independently of the
// scheduler and are stopped cooperatively: the current cycle completes, the
// run record is closed exactly once, and only then does Stop return.
package monitor
