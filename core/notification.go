package core

import (
	"encoding/json"
)

// Notification types carried in the "notification-type" header/body field of
// HMC object notifications.
const (
	NotificationPropertyChange  = "property-change"
	NotificationStatusChange    = "status-change"
	NotificationInventoryChange = "inventory-change"
	NotificationOSMessage       = "os-message"
	NotificationJobCompletion   = "job-completion"
)

// Inventory-change actions carried in the "action" header.
const (
	InventoryAdd    = "add"
	InventoryRemove = "remove"
)

// Notification is one message from the HMC notification bus, as delivered
// to consumers. Err is set instead of Headers/Body for in-band error
// delivery (JMS error frames, unparseable bodies); the stream continues
// after an error notification.
type Notification struct {
	Headers map[string]string
	Body    map[string]interface{}
	Err     error
}

// Type returns the notification type, preferring the header over the body
// field (the HMC sets both).
func (n Notification) Type() string {
	if t, ok := n.Headers["notification-type"]; ok && t != "" {
		return t
	}
	if t, ok := n.Body["notification-type"].(string); ok {
		return t
	}
	return ""
}

// ObjectURI returns the URI of the object the notification refers to.
func (n Notification) ObjectURI() string {
	if u, ok := n.Headers["object-uri"]; ok && u != "" {
		return u
	}
	if u, ok := n.Headers["element-uri"]; ok && u != "" {
		return u
	}
	if u, ok := n.Body["object-uri"].(string); ok {
		return u
	}
	return ""
}

// Class returns the resource class name of the object the notification
// refers to.
func (n Notification) Class() string {
	if c, ok := n.Headers["class"]; ok && c != "" {
		return c
	}
	if c, ok := n.Body["class"].(string); ok {
		return c
	}
	return ""
}

// Action returns the inventory-change action (add or remove).
func (n Notification) Action() string {
	if a, ok := n.Headers["action"]; ok && a != "" {
		return a
	}
	if a, ok := n.Body["action"].(string); ok {
		return a
	}
	return ""
}

// PropertyDiff extracts the changed properties from a property-change or
// status-change notification body. The HMC reports changes as a list of
// change records with the new value per property.
func (n Notification) PropertyDiff() map[string]interface{} {
	diff := make(map[string]interface{})
	records, ok := n.Body["change-reports"].([]interface{})
	if !ok {
		return diff
	}
	for _, r := range records {
		rec, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		name, ok := rec["property-name"].(string)
		if !ok {
			continue
		}
		diff[name] = rec["new-value"]
	}
	return diff
}

// ParseNotificationBody decodes a JSON notification body. A decode failure
// is returned as a NotificationParseError, which receivers deliver in-band.
func ParseNotificationBody(headers map[string]string, raw []byte) Notification {
	var body map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return Notification{Headers: headers, Err: &NotificationParseError{Body: raw, Err: err}}
		}
	}
	return Notification{Headers: headers, Body: body}
}

// NotificationSource is a stream of notifications. The STOMP receiver in
// the notify package and the mock HMC's in-memory hub both implement it;
// the auto-update engine consumes either.
type NotificationSource interface {
	// Notifications returns the delivery channel. The channel is closed
	// when the source is closed or permanently fails.
	Notifications() <-chan Notification

	// Close tears the source down. It must be idempotent and must not
	// block indefinitely.
	Close() error
}

// NotificationSourceFactory opens a notification source for the given
// topic. The session's auto-update engine uses it to subscribe to the
// session's object notification topic; the root package installs a
// STOMP-backed default, and tests install the mock hub.
type NotificationSourceFactory func(topic string) (NotificationSource, error)
