package mqtt

import "strings"

// DefaultTopicPrefix is used when the configuration leaves the prefix empty.
const DefaultTopicPrefix = "onward"

// Topics builds topic names under a common prefix.
//
//	topics := mqtt.NewTopics("onward")
//	topics.SecurityIncidents() // "onward/security/incidents"
type Topics struct {
	prefix string
}

// NewTopics returns a topic builder. Leading and trailing slashes in prefix
// are ignored.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root of every topic.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// SystemStatus is the retained online/offline topic, also used for the LWT.
func (t Topics) SystemStatus() string {
	return t.Prefix() + "/system/status"
}

// SecurityIncidents is where incidents that need a human are published.
func (t Topics) SecurityIncidents() string {
	return t.Prefix() + "/security/incidents"
}

// SecurityEvent returns the topic for one event type.
//
// Example: onward/security/events/login_failed
func (t Topics) SecurityEvent(eventType string) string {
	return t.Prefix() + "/security/events/" + eventType
}

// AllSecurityEvents matches every per-type event topic.
func (t Topics) AllSecurityEvents() string {
	return t.Prefix() + "/security/events/+"
}
