package launcher

import (
	"encoding/json"

	"github.com/cuemby/iot-launcher/pkg/protocol"
	"github.com/cuemby/iot-launcher/pkg/reactor"
)

// eventsBusName names the reactor bus dedicated to in-process delivery of
// launcher events to connected sessions, kept separate from the loop's
// global bus so a host embedding the reactor for other purposes never
// observes (or collides with) launcher traffic on it.
const eventsBusName = "launcher.events"

// eventBus returns the launcher's dedicated event bus, per reactor.Bus's
// get-or-create registry semantics.
func (l *Launcher) eventBus() *reactor.Bus {
	return l.loop.Bus(eventsBusName)
}

// maskBit turns an interned event id into the subscription bit used by
// Session.subscribed. Ids at or beyond the bit width never match a
// specific subscription; a session subscribing to reactor.MatchAll
// still receives them.
func maskBit(id uint32) reactor.EventMask {
	if id >= 64 {
		return 0
	}
	return reactor.EventMask(1) << reactor.EventMask(id)
}

// routeEnvelope is the bus payload route and notifyStopped emit. A
// direct TargetPID bypasses the subscription mask and destination
// filter entirely and is matched by pid alone, the same "straight to
// the killer" delivery the original daemon's stop-completion path uses.
type routeEnvelope struct {
	Dest      protocol.Destination `json:"dest"`
	Event     protocol.Event       `json:"event"`
	TargetPID int32                `json:"target_pid,omitempty"`
}

// deliverToSession returns the bus subscriber callback for s. It runs
// once per emitted event for every live session, reentrantly and safely
// with respect to sessions disconnecting mid-dispatch (Bus.Unsubscribe
// only tombstones; a session removed while this callback is running for
// another session is simply skipped for the remainder of the pass).
func (l *Launcher) deliverToSession(s *Session) reactor.EventCallback {
	return func(_ reactor.EventHandle, id reactor.EventID, _ reactor.EventFormat, payload []byte) {
		var env routeEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return
		}
		if env.TargetPID != 0 {
			if s.PID != env.TargetPID {
				return
			}
		} else {
			mask := maskBit(uint32(id))
			if s.subscribed != reactor.MatchAll && s.subscribed&mask == 0 {
				return
			}
			if !env.Dest.Matches(s.Label, s.AppID, s.UID, s.GID, s.PID) {
				return
			}
		}
		if s.Send != nil {
			s.Send(env.Event)
		}
	}
}

// route delivers an event to every session whose subscription mask
// includes id and whose identity satisfies dest's conjunctive filter
// (spec §4.8). Sessions are matched by their own label/appid/uid/gid/pid,
// not the sender's. Delivery flows through the launcher's event bus so
// it shares the bus's reentrancy-safe dispatch rather than iterating
// l.sessions directly.
func (l *Launcher) route(id uint32, dest protocol.Destination, payload protocol.Event) {
	data, err := json.Marshal(routeEnvelope{Dest: dest, Event: payload})
	if err != nil {
		return
	}
	l.eventBus().Emit(reactor.EventID(id), reactor.FormatJSON, data, reactor.Synchronous)
}

// notifyStopped sends the "stopped" event to the pid that requested a's
// stop, carrying the {"appid": "pkg:app"} payload the original daemon's
// cleanup path sends to the killer.
func (l *Launcher) notifyStopped(a *App) {
	if a.killer == 0 {
		return
	}
	data, _ := json.Marshal(struct {
		AppID string `json:"appid"`
	}{AppID: a.AppID()})
	ev := protocol.NewEvent(protocol.StoppedEvent, data)

	id, err := l.events.Intern(protocol.StoppedEvent)
	if err != nil {
		return
	}
	payload, err := json.Marshal(routeEnvelope{Event: ev, TargetPID: a.killer})
	if err != nil {
		return
	}
	l.eventBus().Emit(reactor.EventID(id), reactor.FormatJSON, payload, reactor.Synchronous)
}
