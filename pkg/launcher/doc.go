// Package launcher is the daemon core: client sessions over the
// launcher and app transports, request dispatch, application lifecycle
// (setup/cleanup/graceful stop), hook registry, and event routing.
package launcher
