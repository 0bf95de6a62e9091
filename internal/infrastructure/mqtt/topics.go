package mqtt

import "fmt"

// Topic roots used by sfcd.
const (
	// TopicPrefix is the root of every sfcd topic.
	TopicPrefix = "sfc"

	// TopicPrefixRuns is the base for run event mirrors.
	TopicPrefixRuns = "sfc/runs"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "sfc/system"
)

// Topics provides builders for sfcd MQTT topics.
//
// Gateway topics take the configured gateway prefix (gateway.topic_prefix)
// so several sfcd instances can share one broker:
//
//	topics := mqtt.Topics{}
//	req := topics.GatewayRequest("sfc/gateway")
//	// Returns: "sfc/gateway/request"
type Topics struct{}

// GatewayRequest returns the topic protocol gateways listen on.
//
// Example: sfc/gateway/request
func (Topics) GatewayRequest(prefix string) string {
	return fmt.Sprintf("%s/request", prefix)
}

// GatewayResponse returns the reply topic for one sfcd client.
//
// Example: sfc/gateway/response/sfcd
func (Topics) GatewayResponse(prefix, clientID string) string {
	return fmt.Sprintf("%s/response/%s", prefix, clientID)
}

// RunEvents returns the topic run events for one design are mirrored to.
//
// Example: sfc/runs/design-42/events
func (Topics) RunEvents(designID string) string {
	return fmt.Sprintf("%s/%s/events", TopicPrefixRuns, designID)
}

// RunResult returns the retained topic holding the last run-level
// outcome (all_finished or cancelled) of one design.
//
// Example: sfc/runs/design-42/result
func (Topics) RunResult(designID string) string {
	return fmt.Sprintf("%s/%s/result", TopicPrefixRuns, designID)
}

// AllRunEvents returns a wildcard matching every design's run events.
func (Topics) AllRunEvents() string {
	return TopicPrefixRuns + "/+/events"
}

// SystemStatus returns the retained online/offline status topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllTopics returns a wildcard matching every sfcd topic.
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
