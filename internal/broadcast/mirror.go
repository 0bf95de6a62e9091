package broadcast

import (
	"github.com/nerrad567/gray-logic-sfc/internal/infrastructure/mqtt"
)

// JSONPublisher publishes a value as JSON. Satisfied by *mqtt.Client.
type JSONPublisher interface {
	PublishJSON(topic string, v any) error
	PublishRetainedJSON(topic string, v any) error
}

// MQTTMirror republishes events on sfc/runs/{design}/events.
// Heartbeats are skipped unless IncludeHeartbeats is set. The run-level
// outcome is also retained on sfc/runs/{design}/result.
type MQTTMirror struct {
	client            JSONPublisher
	IncludeHeartbeats bool
}

// NewMQTTMirror creates a mirror over an MQTT client.
func NewMQTTMirror(client JSONPublisher) *MQTTMirror {
	return &MQTTMirror{client: client}
}

// Send implements Subscriber.
func (m *MQTTMirror) Send(e Event) error {
	if !m.IncludeHeartbeats && IsHeartbeat(e) {
		return nil
	}
	if err := m.client.PublishJSON(mqtt.Topics{}.RunEvents(e.DesignID), e); err != nil {
		return err
	}
	if isOutcome(e) {
		return m.client.PublishRetainedJSON(mqtt.Topics{}.RunResult(e.DesignID), e)
	}
	return nil
}

func isOutcome(e Event) bool {
	return e.NodeID == "" && (e.Status == StatusAllFinished || e.Status == StatusCancelled)
}

// IsHeartbeat reports whether e is a periodic elapsed-time update rather
// than a state transition. The transition into running carries no elapsed time.
func IsHeartbeat(e Event) bool {
	return e.NodeID != "" && e.Status == StatusRunning && e.ElapsedTime != nil
}
