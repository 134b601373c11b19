// Package compiler is the public surface: compile an entrypoint and its
// dependency graph into a single loadable bundle, one-shot or watching.
package compiler

import (
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/frida/frida-compile/internal/bundler"
	"github.com/frida/frida-compile/internal/diag"
	"github.com/frida/frida-compile/internal/frontend"
	"github.com/frida/frida-compile/internal/minifier"
	"github.com/frida/frida-compile/internal/pathutil"
	"github.com/frida/frida-compile/internal/syskit"
	"github.com/frida/frida-compile/internal/watcher"
)

type Options struct {
	// EntryPoint is the user's entry source file. Relative paths are
	// resolved against the working directory.
	EntryPoint string

	// ProjectRoot defaults to the entry point's directory.
	ProjectRoot string

	// CompilerRoot overrides where the shim catalog is looked up.
	CompilerRoot string

	// SourceMaps embeds source maps in the bundle.
	SourceMaps bool

	// Minify compresses every JS asset.
	Minify bool

	// System overrides the host backend; nil means the real one.
	System syskit.System

	// Frontend overrides the compiler front-end; nil means the
	// esbuild-backed default. For watch mode the value must also
	// implement frontend.WatchFrontend.
	Frontend frontend.Frontend

	// Minifier overrides the minifier; nil means the esbuild-backed
	// default when Minify is set.
	Minifier minifier.Minifier
}

type Result struct {
	Bundle      []byte
	Diagnostics []diag.Msg
}

// Hooks are the watch-mode callbacks.
type Hooks = watcher.Hooks

// Session is a running watch controller.
type Session interface {
	Close() error
}

func (o *Options) normalize() {
	entry := o.EntryPoint
	if !pathutil.IsAbs(pathutil.ToPosix(entry)) {
		if abs, err := filepath.Abs(entry); err == nil {
			entry = abs
		}
	}
	o.EntryPoint = pathutil.Normalize(entry)
	if o.System == nil {
		o.System = syskit.NewReal()
	}
	if o.Frontend == nil {
		o.Frontend = frontend.NewESBuild(o.System)
	}
	if o.Minifier == nil && o.Minify {
		o.Minifier = minifier.NewESBuild()
	}
}

func (o Options) newBundler() *bundler.Bundler {
	return bundler.New(o.System, o.Frontend, o.Minifier, bundler.Options{
		EntryPoint:   o.EntryPoint,
		ProjectRoot:  o.ProjectRoot,
		CompilerRoot: o.CompilerRoot,
		SourceMaps:   o.SourceMaps,
		Minify:       o.Minify,
	}, bundler.Events{})
}

// Build runs a single pass and returns the bundle. Diagnostics are
// returned even on failure so the caller can render all of them.
func Build(opts Options) (Result, error) {
	opts.normalize()
	bundle, msgs, err := opts.newBundler().Bundle()
	return Result{Bundle: bundle, Diagnostics: msgs}, err
}

// Watch starts a watch session: an initial pass, then incremental
// passes as files change. The session runs until closed.
func Watch(opts Options, hooks Hooks, log zerolog.Logger) (Session, error) {
	opts.normalize()
	watchFE, ok := opts.Frontend.(frontend.WatchFrontend)
	if !ok {
		return nil, errNotWatchable
	}
	return watcher.Start(opts.System, watchFE, opts.newBundler(), hooks, log)
}
