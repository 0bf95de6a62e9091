package design

import "errors"

var (
	// ErrDesignNotFound is returned when a design id does not exist.
	ErrDesignNotFound = errors.New("design: not found")

	// ErrInvalidChart is returned when stored or submitted chart data cannot
	// be decoded.
	ErrInvalidChart = errors.New("design: invalid chart data")

	// ErrInvalidDuration is returned when a node's time is not a number.
	ErrInvalidDuration = errors.New("design: invalid duration")
)
