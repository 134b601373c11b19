package compiler

import (
	"errors"

	"github.com/frida/frida-compile/internal/bundler"
)

var errNotWatchable = errors.New("the configured front-end does not support watch mode")

// IsUnresolvable reports whether err is a resolution failure and
// returns the offending reference names.
func IsUnresolvable(err error) ([]string, bool) {
	var e *bundler.UnresolvableError
	if errors.As(err, &e) {
		return e.Names, true
	}
	return nil, false
}

// IsCommonJS reports whether err is a CommonJS rejection and returns
// the offending module paths.
func IsCommonJS(err error) ([]string, bool) {
	var e *bundler.CommonJSError
	if errors.As(err, &e) {
		return e.Paths, true
	}
	return nil, false
}
