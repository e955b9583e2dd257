// Package protocol defines the launcher's JSON wire schema: requests,
// status replies, and events, plus the interned event-id table shared by
// pkg/launcher and pkg/reactor's event bus.
package protocol
