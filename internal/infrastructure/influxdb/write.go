package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementAuthEvents is the measurement every security event is written to.
const MeasurementAuthEvents = "auth_events"

// AuthEvent is one row of the auth_events measurement.
type AuthEvent struct {
	Type    string
	Reason  string
	UserID  string
	Family  string
	Revoked int64
	At      time.Time
}

// NewAuthEventPoint converts ev to a point. A zero At means now.
func NewAuthEventPoint(ev AuthEvent) *write.Point {
	tags := map[string]string{"event": ev.Type}
	if ev.Reason != "" {
		tags["reason"] = ev.Reason
	}

	fields := map[string]any{"count": int64(1)}
	if ev.Revoked > 0 {
		fields["revoked"] = ev.Revoked
	}
	if ev.UserID != "" {
		fields["user_id"] = ev.UserID
	}
	if ev.Family != "" {
		fields["family"] = ev.Family
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(MeasurementAuthEvents, tags, fields, at)
}

// WriteAuthEvent queues a security event point in the auth_events measurement.
//
// The write is non-blocking. Points are dropped silently when disconnected,
// and batch failures reach the SetOnError callback.
//
// Parameters:
//   - ev: The event to record; a zero At is stamped with the current time
func (c *Client) WriteAuthEvent(ev AuthEvent) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(NewAuthEventPoint(ev))
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Example:
//
//	client.WritePoint("auth_housekeeping",
//	    map[string]string{"job": "prune"},
//	    map[string]any{"deleted": int64(42)})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
