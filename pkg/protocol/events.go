package protocol

import "fmt"

// DefaultEventTableSize is the default bound on the number of distinct
// event names that can be interned in one process (spec §4.8: "ids fit
// in a bounded table, default 1024").
const DefaultEventTableSize = 1024

// StoppedEvent is the name of the internal event delivered to a stop
// requester once the target application is confirmed gone (spec §4.7,
// §4.8).
const StoppedEvent = "stopped"

// EventTable interns event names to small integer ids, append-only for
// the life of the process (spec §9 "Global mutable state": intern
// tables are the one kind of static global state this system keeps).
// Like every other reactor-owned structure it is touched only from the
// single loop thread and needs no locking.
type EventTable struct {
	limit int
	ids   map[string]uint32
	names []string
}

// NewEventTable creates an event table bounded at limit entries; 0 means
// DefaultEventTableSize.
func NewEventTable(limit int) *EventTable {
	if limit <= 0 {
		limit = DefaultEventTableSize
	}
	return &EventTable{
		limit: limit,
		ids:   make(map[string]uint32),
	}
}

// Intern returns name's id, assigning a new one on first use. It returns
// an error once the table's limit is reached and name is not already
// interned.
func (t *EventTable) Intern(name string) (uint32, error) {
	if id, ok := t.ids[name]; ok {
		return id, nil
	}
	if len(t.names) >= t.limit {
		return 0, fmt.Errorf("protocol: event table full (limit %d)", t.limit)
	}
	id := uint32(len(t.names))
	t.names = append(t.names, name)
	t.ids[name] = id
	return id, nil
}

// Lookup returns name's id without interning it.
func (t *EventTable) Lookup(name string) (uint32, bool) {
	id, ok := t.ids[name]
	return id, ok
}

// Name returns the name interned under id.
func (t *EventTable) Name(id uint32) (string, bool) {
	if int(id) >= len(t.names) {
		return "", false
	}
	return t.names[id], true
}

// Len reports how many names are currently interned.
func (t *EventTable) Len() int {
	return len(t.names)
}
