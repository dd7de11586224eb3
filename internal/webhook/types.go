package webhook

import (
	"time"

	"github.com/feral-file/ff-custody-ledger/internal/messaging"
)

// EventTypeWildcard is a special filter that matches all event types
const EventTypeWildcard = "*"

// EventTypePrefix namespaces notification types in webhook event types (e.g. "ledger.issued")
const EventTypePrefix = "ledger."

// WebhookEvent represents a webhook event to be delivered to clients
type WebhookEvent struct {
	// EventID is the notification id (ULID), stable across redeliveries
	EventID string `json:"event_id"`
	// EventType is the namespaced notification type (e.g., "ledger.ownership_changed")
	EventType string `json:"event_type"`
	// Timestamp is when the notification was committed
	Timestamp time.Time `json:"timestamp"`
	// Data contains the notification
	Data messaging.NotificationMessage `json:"data"`
}

// Endpoint is a webhook subscriber
type Endpoint struct {
	URL string `mapstructure:"url"`
	// Secret is the hex-encoded HMAC key
	Secret string `mapstructure:"secret"`
	// EventFilters lists the event types delivered to this endpoint; empty or "*" means all
	EventFilters []string `mapstructure:"event_filters"`
}

// Matches reports whether the endpoint subscribed to eventType
func (e Endpoint) Matches(eventType string) bool {
	if len(e.EventFilters) == 0 {
		return true
	}
	for _, f := range e.EventFilters {
		if f == EventTypeWildcard || f == eventType {
			return true
		}
	}
	return false
}

// DeliveryResult represents the result of a webhook delivery attempt
type DeliveryResult struct {
	// Success indicates whether the delivery was successful
	Success bool
	// StatusCode is the HTTP status code returned by the webhook endpoint
	StatusCode int
	// Body is the response body (limited to 4KB)
	Body string
	// Error contains error details if delivery failed
	Error string
}
