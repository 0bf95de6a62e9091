package mqtt

import "errors"

// Sentinel errors returned by Client. Check with errors.Is.
var (
	// ErrNotConnected means the broker connection is down. Publishes made
	// while reconnecting fail fast with this error instead of queueing.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed wraps the broker's refusal of the first connect.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS rejects QoS levels outside 0..2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic rejects empty topics and filters.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
