// Package actuator writes time-ramped value sequences to process variables.
//
// A ramp interpolates linearly from a start to an end value in a fixed
// number of steps spread evenly over a duration. Each write is scheduled
// against the ramp's own start time rather than the previous write, so a
// slow write shortens the following sleep instead of pushing every later
// step back.
//
// Ramps are best effort. If the values cannot be converted to the
// variable's type or a write fails, the start value is written once and
// the ramp ends without error. Partially written ramps stay visible.
package actuator
