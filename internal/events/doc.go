// Package events fans security events out to the audit log, the MQTT
// incident bus, InfluxDB and Prometheus.
//
// Fanout implements auth.EventRecorder. Each sink is independent: a failing
// or panicking sink is logged and skipped, and the auth flow that emitted
// the event never sees the error. Sinks that talk to the network are wrapped
// in an Async queue so a slow broker cannot stall a login.
package events
