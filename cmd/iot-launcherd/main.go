package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cuemby/iot-launcher/pkg/api"
	"github.com/cuemby/iot-launcher/pkg/cgroup"
	"github.com/cuemby/iot-launcher/pkg/launcher"
	"github.com/cuemby/iot-launcher/pkg/log"
	"github.com/cuemby/iot-launcher/pkg/manifest"
	"github.com/cuemby/iot-launcher/pkg/metrics"
	"github.com/cuemby/iot-launcher/pkg/privilege"
	"github.com/cuemby/iot-launcher/pkg/protocol"
	"github.com/cuemby/iot-launcher/pkg/reactor"
	"github.com/cuemby/iot-launcher/pkg/transport"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "iot-launcherd",
	Short:   "Application launcher daemon",
	Version: Version,
	RunE:    runDaemon,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("iot-launcherd version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	rootCmd.Flags().String("launcher-addr", "unxs:/run/iot-launcher/launcher.sock", "Launcher-helper transport address")
	rootCmd.Flags().String("app-addr", "unxs:/run/iot-launcher/app.sock", "App transport address")
	rootCmd.Flags().String("common-manifest-dir", "/etc/iot-launcher/manifests", "Common manifest directory")
	rootCmd.Flags().String("user-manifest-dir", "/etc/iot-launcher/manifests.d", "Per-user manifest root directory")
	rootCmd.Flags().Bool("cache-manifests", true, "Cache loaded manifests in memory")
	rootCmd.Flags().String("cgroup-name", "iot-launcher", "Launcher's cgroup v1 hierarchy name")
	rootCmd.Flags().String("cgroup-mount", "/sys/fs/cgroup", "cgroup v1 mount point")
	rootCmd.Flags().String("cgroup-release-agent", "", "cgroup release-agent path")
	rootCmd.Flags().Duration("stop-timeout", launcher.DefaultStopTimeout, "SIGTERM-to-SIGKILL grace period")
	rootCmd.Flags().String("health-addr", "127.0.0.1:9100", "Health/ready/metrics listen address")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

func runDaemon(cmd *cobra.Command, args []string) error {
	launcherAddr, _ := cmd.Flags().GetString("launcher-addr")
	appAddr, _ := cmd.Flags().GetString("app-addr")
	commonDir, _ := cmd.Flags().GetString("common-manifest-dir")
	userDir, _ := cmd.Flags().GetString("user-manifest-dir")
	cache, _ := cmd.Flags().GetBool("cache-manifests")
	cgroupName, _ := cmd.Flags().GetString("cgroup-name")
	cgroupMount, _ := cmd.Flags().GetString("cgroup-mount")
	releaseAgent, _ := cmd.Flags().GetString("cgroup-release-agent")
	stopTimeout, _ := cmd.Flags().GetDuration("stop-timeout")
	healthAddr, _ := cmd.Flags().GetString("health-addr")

	loop, err := reactor.Create()
	if err != nil {
		return fmt.Errorf("create reactor: %w", err)
	}
	defer loop.Close()

	store := manifest.NewStore(manifest.Config{
		CommonDir:   commonDir,
		UserRootDir: userDir,
		Cache:       cache,
	})

	cgc, err := cgroup.New(cgroup.Config{
		Name:         cgroupName,
		Mount:        cgroupMount,
		ReleaseAgent: releaseAgent,
	})
	if err != nil {
		return fmt.Errorf("create cgroup controller: %w", err)
	}

	l := launcher.New(launcher.Config{
		CommonManifestDir: commonDir,
		UserManifestDir:   userDir,
		CacheManifests:    cache,
		CgroupName:        cgroupName,
		CgroupMount:       cgroupMount,
		StopTimeout:       stopTimeout,
	}, loop, store, cgc, privilege.AllowAllGate{})

	if err := wireTransports(l, loop, launcherAddr, appAddr, cgroupName); err != nil {
		return err
	}

	hs := api.NewHealthServer(l)
	go func() {
		if err := hs.Start(healthAddr); err != nil {
			log.Logger.Warn().Err(err).Msg("health/metrics server error")
		}
	}()
	log.Logger.Info().Str("addr", healthAddr).Msg("health, ready, and metrics endpoints listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Logger.Info().Msg("shutting down")
		loop.Quit()
	}()

	log.Logger.Info().Str("launcher-addr", launcherAddr).Str("app-addr", appAddr).Msg("iot-launcherd started")
	return loop.Run()
}

// wireTransports opens both listeners and binds each accepted connection
// to a launcher.Session whose identity is resolved from peer
// credentials at accept time, per spec §4.7's "on connection" step.
func wireTransports(l *launcher.Launcher, loop *reactor.Loop, launcherAddr, appAddr, cgroupName string) error {
	launcherListener, err := transport.Listen(loop, launcherAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", launcherAddr, err)
	}
	launcherListener.OnConn = func(c *transport.Conn) {
		acceptSession(l, c, launcher.LauncherHelperSession, cgroupName)
	}

	appListener, err := transport.Listen(loop, appAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", appAddr, err)
	}
	appListener.OnConn = func(c *transport.Conn) {
		acceptSession(l, c, launcher.AppSession, cgroupName)
	}

	return nil
}

func acceptSession(l *launcher.Launcher, c *transport.Conn, kind launcher.SessionKind, cgroupName string) {
	uid, gid, pid, err := c.PeerCred()
	if err != nil {
		log.Logger.Warn().Err(err).Msg("failed to read peer credentials, dropping connection")
		c.Close()
		return
	}
	label, _ := c.PeerSec()

	s := &launcher.Session{
		Kind:  kind,
		UID:   uid,
		GID:   gid,
		PID:   pid,
		Label: label,
		Reply: func(r protocol.Reply) { _ = c.SendJSON(r) },
		Send:  func(e protocol.Event) { _ = c.SendJSON(e) },
	}
	if kind == launcher.AppSession {
		if relpath, err := cgroup.ResolveCgroupOf(cgroupName, int(pid)); err == nil {
			s.CgroupPath = relpath
			if a, ok := l.AppByCgroup(relpath); ok {
				s.AppID = a.AppID()
			}
		}
	}

	l.Accept(s)
	clientID := uuid.NewString()
	log.WithClient(clientID).Info().Uint32("uid", uid).Uint32("gid", gid).Int32("pid", pid).Msg("client connected")

	c.OnFrame = func(_ *transport.Conn, raw json.RawMessage) {
		var req protocol.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			log.WithClient(clientID).Warn().Err(err).Msg("malformed request frame")
			return
		}
		timer := metrics.NewTimer()
		reply := l.Dispatch(s, req)
		timer.ObserveDurationVec(metrics.RequestDuration, string(req.Type))
		metrics.RequestsTotal.WithLabelValues(string(req.Type), fmt.Sprint(reply.Status.Status)).Inc()
		s.Reply(reply)
	}
	c.OnClosed = func(*transport.Conn) {
		l.Disconnect(s)
		log.WithClient(clientID).Info().Msg("client disconnected")
	}
}
