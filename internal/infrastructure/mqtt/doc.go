// Package mqtt provides MQTT client connectivity for sfcd.
//
// The broker carries two kinds of traffic:
//
//   - Variable gateway request/response pairs. A protocol gateway next to
//     the automation server executes reads and writes on sfcd's behalf.
//   - Run events mirrored from the status broadcaster for dashboards that
//     do not speak WebSocket.
//
// Topology:
//
//	sfcd ↔ MQTT Broker ↔ Protocol Gateway ↔ Automation Server
//
// # Security Considerations
//
//   - TLS should be enabled for non-local brokers (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.RunEvents(designID), event)
package mqtt
