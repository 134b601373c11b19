package syskit

// The bundler never touches the host directly. Everything it needs from
// the outside world is expressed as this capability set, so the same
// core runs against the real file system or against an in-memory one in
// tests. All paths crossing this interface are POSIX-form.

import (
	"time"
)

type EventKind uint8

const (
	EventChanged EventKind = iota
	EventUnlinked
)

type Event struct {
	Path string
	Kind EventKind
}

// Subscription releases a file or directory watch.
type Subscription interface {
	Close() error
}

// Timer is a cancellable one-shot timer.
type Timer interface {
	Stop()
}

type System interface {
	ReadFile(path string) (string, error)
	WriteFile(path string, contents string) error
	FileExists(path string) bool
	DirExists(path string) bool
	ReadDirectory(path string) ([]string, error)
	RealPath(path string) (string, error)
	ModTime(path string) (time.Time, error)

	// Watch subscribes to change and unlink events for a file or
	// directory. Delivery is at-least-once; duplicates are allowed.
	Watch(path string, onEvent func(Event)) (Subscription, error)

	// SetTimeout schedules fn once after d. The returned timer may be
	// stopped before it fires.
	SetTimeout(d time.Duration, fn func()) Timer

	DecodeBase64(encoded string) ([]byte, error)
	Getenv(name string) string
}
