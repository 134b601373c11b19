package bundler

import (
	"fmt"
	"strings"

	"github.com/frida/frida-compile/internal/diag"
)

// UnresolvableError reports every reference that failed to resolve in a
// pass, sorted.
type UnresolvableError struct {
	Names []string
}

func (e *UnresolvableError) Error() string {
	return fmt.Sprintf("unable to resolve: %s", strings.Join(e.Names, ", "))
}

// CommonJSError reports every reachable CommonJS module, sorted.
type CommonJSError struct {
	Paths []string
}

func (e *CommonJSError) Error() string {
	return fmt.Sprintf("CommonJS modules are not supported: %s", strings.Join(e.Paths, ", "))
}

// CompileError wraps front-end diagnostics of error severity.
type CompileError struct {
	Msgs []diag.Msg
}

func (e *CompileError) Error() string {
	count := 0
	for _, m := range e.Msgs {
		if m.Kind == diag.Error {
			count++
		}
	}
	return fmt.Sprintf("compilation failed with %d error(s)", count)
}
