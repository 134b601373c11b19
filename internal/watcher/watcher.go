package watcher

// The watch controller is an explicit state machine over four states:
//
//	idle            nothing to do
//	debouncing      changes seen, timer pending
//	bundling        a pass is running
//	bundling-dirty  a pass is running and more changes arrived
//
// Change events invalidate the touched module and (re)arm the debounce
// timer; the timer tick starts a pass; a pass that finishes dirty
// immediately re-arms. Emission is idempotent: a pass whose bundle is
// byte-identical to the previous one is suppressed.

import (
	"bytes"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/frida/frida-compile/internal/bundler"
	"github.com/frida/frida-compile/internal/diag"
	"github.com/frida/frida-compile/internal/frontend"
	"github.com/frida/frida-compile/internal/syskit"
)

// DebounceDelay coalesces bursts of filesystem events into one pass.
const DebounceDelay = 250 * time.Millisecond

type State uint8

const (
	StateIdle State = iota
	StateDebouncing
	StateBundling
	StateBundlingDirty
)

type Hooks struct {
	// CompilationStarting fires when the front-end begins compiling.
	CompilationStarting func()

	// CompilationFinished fires after every pass, successful or not.
	CompilationFinished func()

	// BundleUpdated fires with each bundle that differs from the last
	// emitted one.
	BundleUpdated func(bundle []byte)

	// Diagnostics receives the messages of each bundling pass (emit and
	// bundler messages). Diagnostics produced while the watch front-end
	// creates a program are not delivered.
	Diagnostics func(msgs []diag.Msg)
}

type Controller struct {
	sys    syskit.System
	b      *bundler.Bundler
	hooks  Hooks
	log    zerolog.Logger
	target string

	mu       sync.Mutex
	state    State
	timer    syskit.Timer
	session  frontend.WatchSession
	latest   frontend.Program
	previous []byte
	watches  map[string]syskit.Subscription
	closed   bool
}

// Start wires the bundler to a watching front-end and begins observing.
// The initial pass is scheduled immediately.
func Start(sys syskit.System, fe frontend.WatchFrontend, b *bundler.Bundler, hooks Hooks, log zerolog.Logger) (*Controller, error) {
	c := &Controller{
		sys:     sys,
		b:       b,
		hooks:   hooks,
		log:     log,
		watches: make(map[string]syskit.Subscription),
	}
	b.OnExternalSourceFileAdded(c.onExternalSourceAdded)

	session, err := fe.Watch([]string{b.Options().EntryPoint}, b.FrontendOptions(), frontend.WatchHooks{
		OnStart:            c.onCompilationStarting,
		AfterProgramCreate: c.onProgramCreated,
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	return c, nil
}

func (c *Controller) onCompilationStarting() {
	c.log.Debug().Msg("compilation starting")
	if c.hooks.CompilationStarting != nil {
		c.hooks.CompilationStarting()
	}
}

// onProgramCreated handles the front-end's afterProgramCreate hook: a
// fresh program supersedes the debounce window and bundles on the next
// tick.
func (c *Controller) onProgramCreated(program frontend.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.latest = program
	switch c.state {
	case StateBundling, StateBundlingDirty:
		c.state = StateBundlingDirty
	default:
		c.armLocked(0)
	}
}

// onExternalSourceAdded subscribes a watch for each dependency file the
// bundler discovers outside the project sources.
func (c *Controller) onExternalSourceAdded(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if _, ok := c.watches[path]; ok {
		return
	}
	sub, err := c.sys.Watch(path, func(ev syskit.Event) {
		c.onChange(ev.Path)
	})
	if err != nil {
		c.log.Warn().Str("path", path).Err(err).Msg("cannot watch file")
		return
	}
	c.watches[path] = sub
}

// onChange is the change event: invalidate, then debounce.
func (c *Controller) onChange(path string) {
	c.log.Debug().Str("path", path).Msg("change detected")
	c.b.Invalidate(path)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	switch c.state {
	case StateIdle, StateDebouncing:
		c.armLocked(DebounceDelay)
	case StateBundling:
		c.state = StateBundlingDirty
	case StateBundlingDirty:
	}
}

// armLocked (re)starts the debounce timer. Caller holds the lock.
func (c *Controller) armLocked(delay time.Duration) {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.state = StateDebouncing
	c.timer = c.sys.SetTimeout(delay, c.onTick)
}

// onTick is the timer event: leave debouncing and run a pass.
func (c *Controller) onTick() {
	c.mu.Lock()
	if c.closed || c.state != StateDebouncing {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.state = StateBundling
	program := c.latestProgramLocked()
	c.mu.Unlock()

	c.rebundle(program)

	c.mu.Lock()
	dirty := c.state == StateBundlingDirty
	if dirty {
		c.armLocked(0)
	} else {
		c.state = StateIdle
	}
	c.mu.Unlock()
}

func (c *Controller) latestProgramLocked() frontend.Program {
	if c.latest != nil {
		return c.latest
	}
	if c.session != nil {
		return c.session.Program()
	}
	return nil
}

// rebundle runs one pass. Failures are logged and leave the previous
// bundle untouched; identical output is suppressed.
func (c *Controller) rebundle(program frontend.Program) {
	defer func() {
		if c.hooks.CompilationFinished != nil {
			c.hooks.CompilationFinished()
		}
	}()
	if program == nil {
		c.log.Error().Msg("no program available")
		return
	}

	started := time.Now()
	bundle, msgs, err := c.b.BundleProgram(program)
	if len(msgs) > 0 && c.hooks.Diagnostics != nil {
		c.hooks.Diagnostics(msgs)
	}
	if err != nil {
		c.log.Error().Err(err).Msg("bundling failed")
		return
	}

	if bytes.Equal(bundle, c.previous) {
		c.log.Debug().Msg("bundle unchanged")
		return
	}
	c.previous = bundle
	c.log.Info().Dur("elapsed", time.Since(started)).Int("size", len(bundle)).Msg("bundle updated")
	if c.hooks.BundleUpdated != nil {
		c.hooks.BundleUpdated(bundle)
	}
}

// State reports the controller's current phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close cancels the controller: the front-end watcher stops, pending
// timers are cleared, and file watches are released.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	session := c.session
	watches := c.watches
	c.watches = make(map[string]syskit.Subscription)
	c.mu.Unlock()

	for _, sub := range watches {
		sub.Close()
	}
	if session != nil {
		return session.Close()
	}
	return nil
}
