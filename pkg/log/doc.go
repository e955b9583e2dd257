// Package log provides structured logging for the launcher daemon using zerolog.
//
// A single global Logger is initialized once via Init and shared by every
// subsystem; component loggers (WithComponent, WithApp, WithClient) attach
// context fields so a given app's or client's log lines can be filtered
// without threading a logger through every call.
package log
