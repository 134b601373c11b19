package syskit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDerivesDirectories(t *testing.T) {
	m := NewMemory(map[string]string{
		"/p/agent/index.ts": "x",
		"/p/agent/greet.ts": "y",
	})

	assert.True(t, m.FileExists("/p/agent/index.ts"))
	assert.False(t, m.FileExists("/p/agent"))
	assert.True(t, m.DirExists("/p/agent"))
	assert.True(t, m.DirExists("/p"))

	names, err := m.ReadDirectory("/p/agent")
	require.NoError(t, err)
	assert.Equal(t, []string{"greet.ts", "index.ts"}, names)
}

func TestMemoryWatchDeliversTouch(t *testing.T) {
	m := NewMemory(map[string]string{"/p/a.js": "1"})

	var events []Event
	sub, err := m.Watch("/p/a.js", func(ev Event) { events = append(events, ev) })
	require.NoError(t, err)

	m.Touch("/p/a.js", "2")
	require.Len(t, events, 1)
	assert.Equal(t, Event{Path: "/p/a.js", Kind: EventChanged}, events[0])
	assert.Equal(t, "2", m.Contents("/p/a.js"))

	require.NoError(t, sub.Close())
	m.Touch("/p/a.js", "3")
	assert.Len(t, events, 1)
}

func TestMemoryTimersFireInDeadlineOrder(t *testing.T) {
	m := NewMemory(nil)

	var order []string
	m.SetTimeout(200*time.Millisecond, func() { order = append(order, "b") })
	m.SetTimeout(100*time.Millisecond, func() { order = append(order, "a") })
	stopped := m.SetTimeout(150*time.Millisecond, func() { order = append(order, "x") })
	stopped.Stop()

	m.Advance(50 * time.Millisecond)
	assert.Empty(t, order)

	m.Advance(200 * time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestMemoryTimerChaining(t *testing.T) {
	m := NewMemory(nil)

	var fired []string
	m.SetTimeout(100*time.Millisecond, func() {
		fired = append(fired, "first")
		m.SetTimeout(100*time.Millisecond, func() { fired = append(fired, "second") })
	})

	m.Advance(250 * time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, fired)
}
