package syskit

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/frida/frida-compile/internal/pathutil"
)

// Real is the host-backed implementation. Reads are not cached: the
// resolver probes many paths that do not exist, and the OS handles that
// cheaply enough.
type Real struct{}

func NewReal() *Real {
	return &Real{}
}

func (*Real) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(pathutil.FromPosix(path))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (*Real) WriteFile(path string, contents string) error {
	native := pathutil.FromPosix(path)
	if err := os.MkdirAll(filepath.Dir(native), 0o755); err != nil {
		return err
	}
	return os.WriteFile(native, []byte(contents), 0o644)
}

func (*Real) FileExists(path string) bool {
	info, err := os.Stat(pathutil.FromPosix(path))
	return err == nil && !info.IsDir()
}

func (*Real) DirExists(path string) bool {
	info, err := os.Stat(pathutil.FromPosix(path))
	return err == nil && info.IsDir()
}

func (*Real) ReadDirectory(path string) ([]string, error) {
	entries, err := os.ReadDir(pathutil.FromPosix(path))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names, nil
}

func (*Real) RealPath(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(pathutil.FromPosix(path))
	if err != nil {
		return "", err
	}
	return pathutil.ToPosix(resolved), nil
}

func (*Real) ModTime(path string) (time.Time, error) {
	info, err := os.Stat(pathutil.FromPosix(path))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

type fsnotifySubscription struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

func (s *fsnotifySubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
	})
	return s.watcher.Close()
}

func (*Real) Watch(path string, onEvent func(Event)) (Subscription, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(pathutil.FromPosix(path)); err != nil {
		watcher.Close()
		return nil, err
	}
	sub := &fsnotifySubscription{watcher: watcher, done: make(chan struct{})}
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				kind := EventChanged
				if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
					kind = EventUnlinked
				}
				onEvent(Event{Path: pathutil.ToPosix(ev.Name), Kind: kind})
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case <-sub.done:
				return
			}
		}
	}()
	return sub, nil
}

type realTimer struct {
	timer *time.Timer
}

func (t *realTimer) Stop() {
	t.timer.Stop()
}

func (*Real) SetTimeout(d time.Duration, fn func()) Timer {
	return &realTimer{timer: time.AfterFunc(d, fn)}
}

func (*Real) DecodeBase64(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}

func (*Real) Getenv(name string) string {
	return os.Getenv(name)
}
