// Package broadcast fans run status events out to observers.
//
// Observers subscribe to a run id or to a design id (every run of that
// design). Delivery is synchronous; an observer whose Send fails is
// dropped without affecting the others. The broadcaster also keeps the
// latest per-node status of every run so a late observer can fetch a
// snapshot instead of replaying history.
package broadcast
