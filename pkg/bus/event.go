// Package bus implements a bounded, non-blocking broadcast channel for
// BusEvents: publishers never block, slow subscribers observe an explicit
// Lagged signal instead of silently missing events.
package bus

// Event is the closed-for-type/open-for-variants set of events carried on
// the bus. Exactly one of the typed fields is meaningful per Kind.
type Event struct {
	Kind EventKind

	// Health
	Service string
	Healthy bool

	// ConfigUpdated
	Version string

	// ServiceCrashed / Restart
	Reason string
}

// EventKind discriminates Event's variant.
type EventKind string

const (
	EventHealth         EventKind = "health"
	EventConfigUpdated  EventKind = "config_updated"
	EventServiceCrashed EventKind = "service_crashed"
	EventShutdown       EventKind = "shutdown"
	EventRestart        EventKind = "restart" // protocol-internal
)

// HealthEvent builds a Health variant.
func HealthEvent(service string, ok bool) Event {
	return Event{Kind: EventHealth, Service: service, Healthy: ok}
}

// ConfigUpdatedEvent builds a ConfigUpdated variant.
func ConfigUpdatedEvent(version string) Event {
	return Event{Kind: EventConfigUpdated, Version: version}
}

// ServiceCrashedEvent builds a ServiceCrashed variant.
func ServiceCrashedEvent(service, reason string) Event {
	return Event{Kind: EventServiceCrashed, Service: service, Reason: reason}
}

// ShutdownEvent builds the Shutdown variant.
func ShutdownEvent() Event { return Event{Kind: EventShutdown} }

// RestartEvent builds the protocol-internal Restart variant.
func RestartEvent(service, reason string) Event {
	return Event{Kind: EventRestart, Service: service, Reason: reason}
}
