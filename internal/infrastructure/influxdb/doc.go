// Package influxdb writes security events to InfluxDB v2 as time series.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring.
//
// # Measurement
//
// Each security event becomes one point in the auth_events measurement:
//
//	auth_events,event=token_reuse_detected,reason=reuse_detected count=1i,revoked=3i,user_id="...",family="..."
//
// Tags stay low-cardinality (event type and revoke reason). User and family
// identifiers are fields so they do not explode the series count.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteAuthEvent(influxdb.AuthEvent{Type: "login_failed", At: time.Now()})
//
// # Error Handling
//
// Writes are non-blocking; batch failures are delivered to the SetOnError
// callback. Connection and health check errors are returned directly.
package influxdb
