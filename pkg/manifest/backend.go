package manifest

import "errors"

// ErrNoBackend is returned by NoBackend's methods, and by any Backend
// left unconfigured.
var ErrNoBackend = errors.New("manifest: no package backend configured")

// Backend resolves facts about installed packages that a .manifest file
// doesn't itself carry: which package owns an arbitrary filesystem path,
// and which files a package installed. The reference daemon answers
// these through RPM's own package database; nothing here implements
// that lookup, so Backend exists purely as the seam a real one would
// satisfy.
type Backend interface {
	// Owner returns the package name that installed path.
	Owner(path string) (pkg string, err error)
	// Files lists the files installed by pkg.
	Files(pkg string) ([]string, error)
}

// NoBackend is a Backend that answers every query with ErrNoBackend. It
// is the default for tools that accept a Backend but are run without
// one configured.
type NoBackend struct{}

func (NoBackend) Owner(string) (string, error)   { return "", ErrNoBackend }
func (NoBackend) Files(string) ([]string, error) { return nil, ErrNoBackend }
