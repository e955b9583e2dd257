package launcher

import (
	"errors"
	"syscall"
)

// Sentinel errors mapped to the wire status codes of spec §7 by
// statusOf. Handlers return these (optionally wrapped with %w and
// request-specific detail) rather than ad hoc error strings, so the
// dispatcher can translate any error into a reply without a type
// switch at the call site.
var (
	ErrInvalid           = errors.New("invalid request")
	ErrDenied            = errors.New("denied")
	ErrNotFound          = errors.New("not found")
	ErrBusy              = errors.New("busy")
	ErrResource          = errors.New("resource exhausted")
	ErrOracleUnavailable = errors.New("privilege oracle unavailable")
)

// statusOf maps an error to the {status, message} pair carried in a
// reply's status envelope. Unrecognised errors fall back to EINVAL
// rather than leaking a Go-specific error string as an ambiguous
// success-like status.
func statusOf(err error) (int, string) {
	if err == nil {
		return 0, "OK"
	}
	switch {
	case errors.Is(err, ErrDenied):
		return int(syscall.EPERM), err.Error()
	case errors.Is(err, ErrNotFound):
		return int(syscall.ENOENT), err.Error()
	case errors.Is(err, ErrBusy):
		return int(syscall.EBUSY), err.Error()
	case errors.Is(err, ErrResource):
		return int(syscall.ENOMEM), err.Error()
	case errors.Is(err, ErrOracleUnavailable):
		return int(syscall.ENOTCONN), err.Error()
	case errors.Is(err, ErrInvalid):
		return int(syscall.EINVAL), err.Error()
	default:
		return int(syscall.EINVAL), err.Error()
	}
}
