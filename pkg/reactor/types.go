package reactor

import "golang.org/x/sys/unix"

// IOMask carries the readiness bits a watch cares about, or that a poll
// round reported.
type IOMask uint32

const (
	In  IOMask = 1 << iota // readable
	Out                    // writable
	Hup                    // peer hung up / error
)

// Trigger selects level- or edge-triggered delivery for an I/O watch.
type Trigger int

const (
	// LevelTriggered re-reports readiness every poll while it holds.
	LevelTriggered Trigger = iota
	// EdgeTriggered reports readiness only on state transitions.
	EdgeTriggered
)

func (m IOMask) toEpoll() uint32 {
	var e uint32
	if m&In != 0 {
		e |= unix.EPOLLIN
	}
	if m&Out != 0 {
		e |= unix.EPOLLOUT
	}
	// Hup is always implicitly reported by the kernel; EPOLLHUP/EPOLLERR
	// need no explicit request bit.
	return e
}

func fromEpoll(events uint32) IOMask {
	var m IOMask
	if events&unix.EPOLLIN != 0 {
		m |= In
	}
	if events&unix.EPOLLOUT != 0 {
		m |= Out
	}
	if events&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		m |= Hup
	}
	return m
}

// WakeupMask selects which poll outcomes a Wakeup should fire on.
type WakeupMask uint32

const (
	WakeupIO    WakeupMask = 1 << iota // poll returned at least one ready fd
	WakeupTimer                        // poll returned because of timer/empty timeout
)

// EventID identifies an interned event-bus event name.
type EventID uint32

// EventMask is a bitset over EventID values below 64; for larger id spaces
// watches may register with MatchAll to receive everything.
type EventMask uint64

// MatchAll, used as an EventMask, subscribes to every event regardless of id.
const MatchAll EventMask = ^EventMask(0)

func (m EventMask) has(id EventID) bool {
	if m == MatchAll {
		return true
	}
	if id >= 64 {
		return false
	}
	return m&(1<<uint(id)) != 0
}

func maskBit(id EventID) EventMask {
	if id >= 64 {
		return 0
	}
	return 1 << uint(id)
}

// EventFlags modify Bus.Emit behaviour.
type EventFlags int

const (
	// Synchronous delivers to subscribers inline within Emit instead of
	// queueing for the next pump. Every bus, global or named, honours it.
	Synchronous EventFlags = 1 << iota
)

// EventFormat describes how a pending event's payload should be
// interpreted by subscribers.
type EventFormat int

const (
	FormatRaw EventFormat = iota
	FormatJSON
)
