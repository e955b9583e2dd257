package protocol

import "encoding/json"

// RequestType is the wire-level request discriminator carried in every
// request's "type" field.
type RequestType string

const (
	RequestSetup           RequestType = "setup"
	RequestCleanup         RequestType = "cleanup"
	RequestSubscribeEvents RequestType = "subscribe-events"
	RequestSendEvent       RequestType = "send-event"
	RequestListRunning     RequestType = "list-running"
	RequestListInstalled   RequestType = "list-all"
	RequestStop            RequestType = "stop"
)

// Request is the union of every accepted request shape. Fields not
// relevant to Type are left zero. Wire field names and semantics per
// spec §6; the list-running/list-all type values resolve the spec's
// ambiguous "type":"list" plus nested "type":"running"|"installed"
// pair against the original daemon's actual discriminator values (see
// DESIGN.md).
type Request struct {
	Type  RequestType `json:"type"`
	Seqno uint64      `json:"seqno"`

	// setup
	Manifest string                 `json:"manifest,omitempty"`
	App      string                 `json:"app,omitempty"`
	User     *uint32                `json:"user,omitempty"`
	Group    *uint32                `json:"group,omitempty"`
	Exec     []string               `json:"exec,omitempty"`
	Dbg      map[string]interface{} `json:"dbg,omitempty"`

	// cleanup
	Cgroup string `json:"cgroup,omitempty"`

	// subscribe-events
	Events []string `json:"events,omitempty"`

	// send-event
	Event   string          `json:"event,omitempty"`
	Label   string          `json:"label,omitempty"`
	AppID   string          `json:"appid,omitempty"`
	Process *int32          `json:"process,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`

	// stop: reuses App above as "pkg:app"
}

// Status is a status reply's embedded payload.
type Status struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Reply is the sole reply shape: a status envelope correlated to a
// request's seqno.
type Reply struct {
	Type   string `json:"type"`
	Seqno  uint64 `json:"seqno"`
	Status Status `json:"status"`
}

// NewReply builds a success or failure status reply for seqno.
func NewReply(seqno uint64, status int, message string, data json.RawMessage) Reply {
	return Reply{
		Type:  "status",
		Seqno: seqno,
		Status: Status{
			Status:  status,
			Message: message,
			Data:    data,
		},
	}
}

// OK builds a seqno-correlated success reply, optionally carrying data.
func OK(seqno uint64, data json.RawMessage) Reply {
	return NewReply(seqno, 0, "OK", data)
}

// EventPayload is an event message's embedded payload.
type EventPayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is the wire shape delivered to subscribed clients; seqno is
// always 0 for events per spec §6.
type Event struct {
	Type  string       `json:"type"`
	Seqno uint64       `json:"seqno"`
	Event EventPayload `json:"event"`
}

// NewEvent builds an event message ready for framing.
func NewEvent(name string, data json.RawMessage) Event {
	return Event{Type: "event", Event: EventPayload{Event: name, Data: data}}
}

// Destination is a send-event request's delivery filter: a field left at
// its zero value (empty string, nil pointer) is a wildcard.
type Destination struct {
	Label   string
	AppID   string
	UID     *uint32
	GID     *uint32
	Process *int32
}

// Matches reports whether a subscriber's identity satisfies every
// present (non-wildcard) field of d, by conjunction.
func (d Destination) Matches(label, appid string, uid, gid uint32, pid int32) bool {
	if d.Label != "" && d.Label != label {
		return false
	}
	if d.AppID != "" && d.AppID != appid {
		return false
	}
	if d.UID != nil && *d.UID != uid {
		return false
	}
	if d.GID != nil && *d.GID != gid {
		return false
	}
	if d.Process != nil && *d.Process != pid {
		return false
	}
	return true
}
