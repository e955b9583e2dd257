// Package privilege abstracts the access-control oracle the launcher
// consults before privileged requests (the list requests; stop and
// send-event do not consult it):
// callers must not be able to distinguish a stubbed always-allow gate
// from one backed by a real access-control service.
package privilege

// Verdict is a gate check's tri-state outcome.
type Verdict int

const (
	// Unavailable means the oracle has no backend to answer the query.
	Unavailable Verdict = -1
	Deny        Verdict = 0
	Allow       Verdict = 1
)

// Well-known privilege names referenced by the launcher core.
const (
	ListApps  = "list-apps"
	StopApp   = "stop-app"
	SendEvent = "send-event"
)

// Gate is the privilege oracle's interface. All methods must be
// synchronous and non-blocking from the reactor's perspective (spec
// §4.6): no gate implementation may perform blocking I/O on Check.
type Gate interface {
	// Init runs once at launcher startup.
	Init() error
	// Exit runs once at launcher shutdown.
	Exit()
	// Check reports whether label/uid may exercise privilege.
	Check(label string, uid uint32, privilege string) Verdict
}

// AllowAllGate is a stub oracle that grants every request. It is the
// default when no access-control backend is configured.
type AllowAllGate struct{}

func (AllowAllGate) Init() error { return nil }
func (AllowAllGate) Exit()       {}
func (AllowAllGate) Check(string, uint32, string) Verdict { return Allow }

// OracleGate adapts an external access-control collaborator — reached
// only through this interface, never called directly by the launcher —
// to the Gate contract. The query function is injected so the actual
// backend (a system service, a policy file, an IPC call) remains an
// external collaborator per the spec's scope boundary.
type OracleGate struct {
	query func(label string, uid uint32, privilege string) (bool, bool)
}

// NewOracleGate wraps query, which must return (allowed, available).
func NewOracleGate(query func(label string, uid uint32, privilege string) (bool, bool)) *OracleGate {
	return &OracleGate{query: query}
}

func (g *OracleGate) Init() error { return nil }
func (g *OracleGate) Exit()       {}

func (g *OracleGate) Check(label string, uid uint32, privilege string) Verdict {
	if g.query == nil {
		return Unavailable
	}
	allowed, available := g.query(label, uid, privilege)
	if !available {
		return Unavailable
	}
	if allowed {
		return Allow
	}
	return Deny
}
