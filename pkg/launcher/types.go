package launcher

import (
	"time"

	"github.com/cuemby/iot-launcher/pkg/cgroup"
	"github.com/cuemby/iot-launcher/pkg/manifest"
	"github.com/cuemby/iot-launcher/pkg/privilege"
	"github.com/cuemby/iot-launcher/pkg/protocol"
	"github.com/cuemby/iot-launcher/pkg/reactor"
)

// DefaultStopTimeout is the delay between SIGTERM and the SIGKILL
// escalation for a non-cooperating application (spec §4.7; default
// value resolved from original_source's application.c, not otherwise
// specified in the distilled spec).
const DefaultStopTimeout = 3 * time.Second

// Config bootstraps a Launcher. Full option/config-file loading is out
// of scope; this is the handful of fields the daemon entrypoint derives
// from its cobra flags.
type Config struct {
	CommonManifestDir string
	UserManifestDir   string
	CacheManifests    bool

	CgroupName         string
	CgroupMount        string
	CgroupReleaseAgent string

	StopTimeout time.Duration

	EventTableSize int
}

// SessionKind distinguishes the trusted launcher-helper transport from
// the app transport; request access rules (spec §4.7 table) are gated
// on this.
type SessionKind int

const (
	LauncherHelperSession SessionKind = iota
	AppSession
)

// Session is one connected client's identity and subscription state.
// It is transport-agnostic: a caller (the daemon entrypoint, or a test)
// supplies Reply/Send, so this package never depends on pkg/transport.
type Session struct {
	Kind SessionKind

	UID   uint32
	GID   uint32
	PID   int32
	Label string

	// AppID is "package:application", resolved from CgroupPath once
	// known; empty for sessions that aren't identified as a specific
	// running application (e.g. the launcher helper).
	AppID      string
	CgroupPath string

	subscribed reactor.EventMask
	busHandle  reactor.EventHandle

	// Reply delivers req's correlated reply to this session.
	Reply func(protocol.Reply)
	// Send delivers an out-of-band event to this session.
	Send func(protocol.Event)
}

// App is a live application record: the product of a successful setup,
// removed on cleanup.
type App struct {
	Package string
	Name    string // the "app" field from the setup request, not necessarily the manifest's application name in multi-app packages
	UID     uint32
	GID     uint32
	PID     int32
	Argv    []string

	CgroupPath string
	Manifest   *manifest.Manifest

	killer    int32 // pid that requested stop, 0 if none
	stopTimer reactor.TimerHandle
	hasTimer  bool
}

// AppID returns the "package:app" identifier used on the wire (stop
// requests, list-running entries, event appid matching).
func (a *App) AppID() string { return a.Package + ":" + a.Name }

// Launcher is the daemon core: owns the application list, the session
// set, the manifest store, the cgroup controller, and the privilege
// gate, and dispatches every request per spec §4.7's table.
type Launcher struct {
	cfg   Config
	loop  *reactor.Loop
	store *manifest.Store
	cgc   *cgroup.Controller
	gate  privilege.Gate

	events *protocol.EventTable
	hooks  []Hook

	apps     map[string]*App // keyed by cgroup relpath
	sessions map[*Session]bool
}

// New builds a Launcher over an already-created reactor loop, manifest
// store, cgroup controller, and privilege gate.
func New(cfg Config, loop *reactor.Loop, store *manifest.Store, cgc *cgroup.Controller, gate privilege.Gate) *Launcher {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	tableSize := cfg.EventTableSize
	if tableSize <= 0 {
		tableSize = protocol.DefaultEventTableSize
	}
	return &Launcher{
		cfg:      cfg,
		loop:     loop,
		store:    store,
		cgc:      cgc,
		gate:     gate,
		events:   protocol.NewEventTable(tableSize),
		apps:     make(map[string]*App),
		sessions: make(map[*Session]bool),
	}
}

// Accept registers a newly connected session. It runs no hook; the
// caller populates UID/GID/PID/Label and, for app sessions,
// CgroupPath/AppID before calling Accept. It also subscribes the
// session to the launcher's event bus, the single path route and
// notifyStopped use to reach every live session.
func (l *Launcher) Accept(s *Session) {
	l.sessions[s] = true
	s.busHandle = l.eventBus().Subscribe(reactor.MatchAll, l.deliverToSession(s))
}

// Disconnect removes a session. Its subscriptions stop mattering
// immediately; no event in flight is delivered to it afterward, even if
// the disconnect happens from within an in-progress bus dispatch.
func (l *Launcher) Disconnect(s *Session) {
	delete(l.sessions, s)
	l.eventBus().Unsubscribe(s.busHandle)
}

// AppByCgroup looks up a live application by its cgroup relative path.
func (l *Launcher) AppByCgroup(cgrp string) (*App, bool) {
	a, ok := l.apps[cgrp]
	return a, ok
}
