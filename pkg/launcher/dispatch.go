package launcher

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cuemby/iot-launcher/pkg/log"
	"github.com/cuemby/iot-launcher/pkg/manifest"
	"github.com/cuemby/iot-launcher/pkg/privilege"
	"github.com/cuemby/iot-launcher/pkg/protocol"
)

// Dispatch routes req from s through the access-rule table of spec §4.7,
// runs the matching handler, and returns the reply to send back. s must
// already carry the identity (UID/GID/PID/Label, and for app sessions
// CgroupPath/AppID) resolved at connection time.
func (l *Launcher) Dispatch(s *Session, req protocol.Request) protocol.Reply {
	var err error
	var data json.RawMessage

	switch req.Type {
	case protocol.RequestSetup:
		if s.Kind != LauncherHelperSession {
			err = fmt.Errorf("%w: setup only accepted from the launcher helper", ErrDenied)
			break
		}
		data, err = l.handleSetup(s, req)
	case protocol.RequestCleanup:
		if s.Kind != LauncherHelperSession {
			err = fmt.Errorf("%w: cleanup only accepted from the launcher helper", ErrDenied)
			break
		}
		err = l.handleCleanup(req)
	case protocol.RequestSubscribeEvents:
		if s.Kind != AppSession {
			err = fmt.Errorf("%w: subscribe-events only accepted from app clients", ErrDenied)
			break
		}
		err = l.handleSubscribeEvents(s, req)
	case protocol.RequestSendEvent:
		if s.Kind != AppSession {
			err = fmt.Errorf("%w: send-event only accepted from app clients", ErrDenied)
			break
		}
		err = l.handleSendEvent(s, req)
	case protocol.RequestListRunning:
		if s.Kind != AppSession {
			err = fmt.Errorf("%w: list only accepted from app clients", ErrDenied)
			break
		}
		if v := l.gate.Check(s.Label, s.UID, privilege.ListApps); v != privilege.Allow {
			err = fmt.Errorf("%w: list-apps not granted", ErrDenied)
			break
		}
		data, err = l.handleListRunning(s)
	case protocol.RequestListInstalled:
		if s.Kind != AppSession {
			err = fmt.Errorf("%w: list only accepted from app clients", ErrDenied)
			break
		}
		if v := l.gate.Check(s.Label, s.UID, privilege.ListApps); v != privilege.Allow {
			err = fmt.Errorf("%w: list-apps not granted", ErrDenied)
			break
		}
		data, err = l.handleListInstalled(s)
	case protocol.RequestStop:
		if s.Kind != AppSession {
			err = fmt.Errorf("%w: stop only accepted from app clients", ErrDenied)
			break
		}
		var msg string
		msg, err = l.handleStop(s, req)
		if err == nil {
			return protocol.NewReply(req.Seqno, 0, msg, nil)
		}
	default:
		err = fmt.Errorf("%w: unknown request type %q", ErrInvalid, req.Type)
	}

	status, message := statusOf(err)
	return protocol.NewReply(req.Seqno, status, message, data)
}

// handleSetup instantiates an application record. The pid placed into
// the cgroup and recorded on the App is always s.PID: setup requests
// carry no pid field on the wire, it comes entirely from the launcher
// helper's own SO_PEERCRED at connect time.
func (l *Launcher) handleSetup(s *Session, req protocol.Request) (json.RawMessage, error) {
	if req.Manifest == "" || req.App == "" || len(req.Exec) == 0 {
		return nil, fmt.Errorf("%w: setup requires manifest, app, and exec", ErrInvalid)
	}

	uid := s.UID
	if req.User != nil {
		uid = *req.User
	}
	gid := s.GID
	if req.Group != nil {
		gid = *req.Group
	}

	m, err := l.store.Get(int(uid), req.Manifest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if m.Status != 0 {
		m.Unref()
		return nil, fmt.Errorf("%w: manifest %q failed validation (%s)", ErrInvalid, req.Manifest, m.Status)
	}

	var app *manifest.Application
	for i := range m.Apps {
		if m.Apps[i].Name == req.App {
			app = &m.Apps[i]
			break
		}
	}
	if app == nil {
		m.Unref()
		return nil, fmt.Errorf("%w: application %q not declared in manifest %q", ErrNotFound, req.App, req.Manifest)
	}

	base := filepath.Base(req.Exec[0])
	relpath, err := l.cgc.Mkdir(uid, base, int(s.PID))
	if err != nil {
		m.Unref()
		return nil, fmt.Errorf("%w: %v", ErrResource, err)
	}

	a := &App{
		Package:    req.Manifest,
		Name:       req.App,
		UID:        uid,
		GID:        gid,
		PID:        s.PID,
		Argv:       append([]string(nil), req.Exec...),
		CgroupPath: relpath,
		Manifest:   m,
	}

	if err := l.runSetupHooks(a); err != nil {
		_ = l.cgc.Rmdir(relpath)
		m.Unref()
		return nil, fmt.Errorf("%w: setup hook: %v", ErrDenied, err)
	}

	l.apps[relpath] = a
	log.WithApp(a.Package, a.Name).Info().Uint32("uid", uid).Int32("pid", s.PID).Str("cgroup", relpath).Msg("application set up")

	if req.Dbg == nil {
		return nil, nil
	}
	return json.Marshal(struct {
		Dbg map[string]interface{} `json:"dbg"`
	}{Dbg: req.Dbg})
}

// handleCleanup locates the application owning req.Cgroup. An unknown
// cgroup path is not an error: the original daemon treats a cleanup
// racing an already-reaped app as a plain success.
func (l *Launcher) handleCleanup(req protocol.Request) error {
	if req.Cgroup == "" {
		return fmt.Errorf("%w: cleanup requires cgroup", ErrInvalid)
	}
	relpath := strings.TrimPrefix(req.Cgroup, "/")
	a, ok := l.apps[relpath]
	if !ok {
		return nil
	}

	l.cancelStopTimer(a)
	l.runCleanupHooks(a)
	l.notifyStopped(a)

	delete(l.apps, relpath)
	if a.Manifest != nil {
		a.Manifest.Unref()
	}
	if err := l.cgc.Rmdir(relpath); err != nil {
		log.WithApp(a.Package, a.Name).Warn().Err(err).Msg("cgroup removal failed")
	}
	return nil
}

func (l *Launcher) handleSubscribeEvents(s *Session, req protocol.Request) error {
	for _, name := range req.Events {
		id, err := l.events.Intern(name)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrResource, err)
		}
		s.subscribed |= maskBit(id)
	}
	return nil
}

func (l *Launcher) handleSendEvent(s *Session, req protocol.Request) error {
	if req.Event == "" {
		return fmt.Errorf("%w: send-event requires event", ErrInvalid)
	}
	id, err := l.events.Intern(req.Event)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResource, err)
	}
	dest := protocol.Destination{
		Label:   req.Label,
		AppID:   req.AppID,
		UID:     req.User,
		GID:     req.Group,
		Process: req.Process,
	}
	l.route(id, dest, protocol.NewEvent(req.Event, req.Data))
	return nil
}

type runningEntry struct {
	App         string   `json:"app"`
	Description string   `json:"description"`
	Desktop     string   `json:"desktop"`
	User        uint32   `json:"user"`
	Argv        []string `json:"argv"`
}

func (l *Launcher) handleListRunning(s *Session) (json.RawMessage, error) {
	var out []runningEntry
	for _, a := range l.apps {
		if s.UID != 0 && a.UID != s.UID {
			continue
		}
		var desc, desktop string
		if a.Manifest != nil {
			for _, app := range a.Manifest.Apps {
				if app.Name == a.Name {
					desc = app.Description
					desktop = app.Desktop
					break
				}
			}
		}
		out = append(out, runningEntry{
			App:         a.AppID(),
			Description: desc,
			Desktop:     desktop,
			User:        a.UID,
			Argv:        a.Argv,
		})
	}
	return json.Marshal(out)
}

type installedEntry struct {
	Package string   `json:"package"`
	Apps    []string `json:"apps"`
}

func (l *Launcher) handleListInstalled(s *Session) (json.RawMessage, error) {
	pkgs, err := l.store.Installed(int(s.UID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResource, err)
	}
	out := make([]installedEntry, 0, len(pkgs))
	for _, p := range pkgs {
		names := make([]string, 0, len(p.Apps))
		for _, a := range p.Apps {
			names = append(names, a.Name)
		}
		out = append(out, installedEntry{Package: p.Package, Apps: names})
	}
	return json.Marshal(out)
}

// handleStop resolves "pkg:app", checks ownership, and begins the
// SIGTERM/SIGKILL sequence. Returns the literal "SIGNALLED" message the
// original daemon replies with on success.
func (l *Launcher) handleStop(s *Session, req protocol.Request) (string, error) {
	pkg, app, ok := strings.Cut(req.App, ":")
	if !ok {
		return "", fmt.Errorf("%w: stop requires app as \"pkg:app\"", ErrInvalid)
	}

	var target *App
	for _, a := range l.apps {
		if a.Package == pkg && a.Name == app {
			target = a
			break
		}
	}
	if target == nil {
		return "", fmt.Errorf("%w: application %q is not running", ErrNotFound, req.App)
	}
	if s.UID != 0 && s.UID != target.UID {
		return "", fmt.Errorf("%w: not the owner of %q", ErrDenied, req.App)
	}
	if target.killer != 0 {
		return "", fmt.Errorf("%w: stop already in progress for %q", ErrBusy, req.App)
	}

	if err := l.beginStop(target, s.PID); err != nil {
		return "", fmt.Errorf("%w: %v", ErrResource, err)
	}
	return "SIGNALLED", nil
}
