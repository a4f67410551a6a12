// Package mqtt provides the MQTT connection used to publish security incidents.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS guarantees and a payload size cap
//   - Last Will and Testament (LWT) so subscribers notice a crashed service
//   - Connection health for the readiness probe
//
// # Topics
//
// All topics live under a configurable prefix (default "onward"):
//
//	onward/system/status              retained online/offline status
//	onward/security/incidents         token reuse, account lockouts
//	onward/security/events/{type}     every other security event
//
// # Security Considerations
//
//   - Payloads never contain refresh token values or passwords
//   - TLS should be enabled for any broker outside localhost
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(client.Topics().SecurityIncidents(), incident)
package mqtt
