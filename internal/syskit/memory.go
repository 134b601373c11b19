package syskit

import (
	"encoding/base64"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/frida/frida-compile/internal/pathutil"
)

// Memory is the in-memory implementation used by tests and embedded
// hosts. Directories are derived from the file map the way the real
// file system would present them. Time does not pass on its own: the
// test advances a virtual clock and timers fire synchronously.
type Memory struct {
	mu      sync.Mutex
	files   map[string]string
	dirs    map[string]map[string]bool
	env     map[string]string
	mtimes  map[string]time.Time
	watches map[string][]*memorySubscription
	now     time.Time
	timers  []*memoryTimer
	nextID  int
}

func NewMemory(files map[string]string) *Memory {
	m := &Memory{
		files:   make(map[string]string),
		dirs:    make(map[string]map[string]bool),
		env:     make(map[string]string),
		mtimes:  make(map[string]time.Time),
		watches: make(map[string][]*memorySubscription),
		now:     time.Unix(0, 0),
	}
	for path, contents := range files {
		m.addFile(pathutil.Normalize(path), contents)
	}
	return m
}

func (m *Memory) addFile(path string, contents string) {
	m.files[path] = contents
	m.mtimes[path] = m.now
	child := path
	for {
		parent := pathutil.Dir(child)
		if parent == child {
			break
		}
		entries, ok := m.dirs[parent]
		if !ok {
			entries = make(map[string]bool)
			m.dirs[parent] = entries
		}
		entries[pathutil.Base(child)] = true
		child = parent
	}
}

func (m *Memory) ReadFile(path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	contents, ok := m.files[pathutil.Normalize(path)]
	if !ok {
		return "", &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
	}
	return contents, nil
}

func (m *Memory) WriteFile(path string, contents string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addFile(pathutil.Normalize(path), contents)
	return nil
}

func (m *Memory) FileExists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[pathutil.Normalize(path)]
	return ok
}

func (m *Memory) DirExists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.dirs[pathutil.Normalize(path)]
	return ok
}

func (m *Memory) ReadDirectory(path string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, ok := m.dirs[pathutil.Normalize(path)]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
	}
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) RealPath(path string) (string, error) {
	return pathutil.Normalize(path), nil
}

func (m *Memory) ModTime(path string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mtime, ok := m.mtimes[pathutil.Normalize(path)]
	if !ok {
		return time.Time{}, &os.PathError{Op: "stat", Path: path, Err: os.ErrNotExist}
	}
	return mtime, nil
}

type memorySubscription struct {
	owner   *Memory
	path    string
	onEvent func(Event)
	closed  bool
}

func (s *memorySubscription) Close() error {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	s.closed = true
	return nil
}

func (m *Memory) Watch(path string, onEvent func(Event)) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = pathutil.Normalize(path)
	sub := &memorySubscription{owner: m, path: path, onEvent: onEvent}
	m.watches[path] = append(m.watches[path], sub)
	return sub, nil
}

// Touch replaces a file's contents and delivers a change event to every
// live watch on the file, the way an editor save would.
func (m *Memory) Touch(path string, contents string) {
	m.mu.Lock()
	path = pathutil.Normalize(path)
	m.addFile(path, contents)
	subs := make([]*memorySubscription, 0, len(m.watches[path]))
	for _, sub := range m.watches[path] {
		if !sub.closed {
			subs = append(subs, sub)
		}
	}
	m.mu.Unlock()
	for _, sub := range subs {
		sub.onEvent(Event{Path: path, Kind: EventChanged})
	}
}

type memoryTimer struct {
	owner   *Memory
	id      int
	fires   time.Time
	fn      func()
	stopped bool
}

func (t *memoryTimer) Stop() {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	t.stopped = true
}

func (m *Memory) SetTimeout(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	timer := &memoryTimer{owner: m, id: m.nextID, fires: m.now.Add(d), fn: fn}
	m.timers = append(m.timers, timer)
	return timer
}

// Advance moves the virtual clock forward, firing due timers in
// deadline order. Timers scheduled by a firing callback are honored
// within the same advance when they fall inside the window.
func (m *Memory) Advance(d time.Duration) {
	m.mu.Lock()
	deadline := m.now.Add(d)
	m.mu.Unlock()
	for {
		m.mu.Lock()
		var next *memoryTimer
		for _, timer := range m.timers {
			if timer.stopped || timer.fires.After(deadline) {
				continue
			}
			if next == nil || timer.fires.Before(next.fires) ||
				(timer.fires.Equal(next.fires) && timer.id < next.id) {
				next = timer
			}
		}
		if next == nil {
			m.now = deadline
			m.mu.Unlock()
			return
		}
		next.stopped = true
		if next.fires.After(m.now) {
			m.now = next.fires
		}
		fn := next.fn
		m.mu.Unlock()
		fn()
	}
}

func (m *Memory) DecodeBase64(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}

func (m *Memory) Setenv(name string, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.env[name] = value
}

func (m *Memory) Getenv(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.env[name]
}

var _ System = (*Memory)(nil)
var _ System = (*Real)(nil)

// Contents returns a file's current contents, failing the caller loudly
// when the file is absent. Test helper.
func (m *Memory) Contents(path string) string {
	contents, err := m.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("no such file in memory system: %s", path))
	}
	return contents
}
