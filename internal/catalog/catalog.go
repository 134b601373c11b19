package catalog

// The asset catalog interposes replacement packages on the Node.js
// builtins so a bundle never depends on the host environment. Each
// entry maps a bare specifier to the root of a shim package shipped
// under the compiler's own node_modules.

import (
	"sort"

	"github.com/frida/frida-compile/internal/pathutil"
)

// CompilerPackageName is the name the compiler is installed under in a
// project's node_modules.
const CompilerPackageName = "frida-compile"

// shimPackages maps builtin specifiers to the shim package that
// replaces them.
var shimPackages = map[string]string{
	"assert":              "@frida/assert",
	"base64-js":           "@frida/base64-js",
	"buffer":              "@frida/buffer",
	"crypto":              "@frida/crypto",
	"diagnostics_channel": "@frida/diagnostics_channel",
	"events":              "@frida/events",
	"fs":                  "frida-fs",
	"http":                "@frida/http",
	"http-parser-js":      "@frida/http-parser-js",
	"https":               "@frida/https",
	"ieee754":             "@frida/ieee754",
	"net":                 "@frida/net",
	"os":                  "@frida/os",
	"path":                "@frida/path",
	"process":             "@frida/process",
	"punycode":            "@frida/punycode",
	"querystring":         "@frida/querystring",
	"readable-stream":     "@frida/readable-stream",
	"stream":              "@frida/stream",
	"string_decoder":      "@frida/string_decoder",
	"timers":              "@frida/timers",
	"tty":                 "@frida/tty",
	"url":                 "@frida/url",
	"util":                "@frida/util",
	"vm":                  "@frida/vm",
}

// builtins that also resolve under the "node:" scheme.
var nodePrefixed = []string{
	"assert", "buffer", "crypto", "diagnostics_channel", "events", "fs",
	"http", "https", "net", "os", "path", "process", "punycode",
	"querystring", "stream", "string_decoder", "timers", "tty", "url",
	"util", "vm",
}

type Catalog struct {
	// ProjectRoot is the directory holding the user's sources.
	ProjectRoot string

	// ProjectNodeModules is <ProjectRoot>/node_modules.
	ProjectNodeModules string

	// CompilerRoot is the root of the installed compiler package; the
	// shim packages live under its node_modules.
	CompilerRoot string

	// ShimModules is <CompilerRoot>/node_modules.
	ShimModules string

	// Shims maps every interposed specifier (bare and node:-prefixed)
	// to the absolute POSIX root of its shim package.
	Shims map[string]string
}

// Load resolves the catalog for a project. The compiler root defaults
// to the conventional install location when not given.
func Load(projectRoot string, compilerRoot string) *Catalog {
	projectRoot = pathutil.Normalize(projectRoot)
	if compilerRoot == "" {
		compilerRoot = pathutil.Join(projectRoot, "node_modules", CompilerPackageName)
	} else {
		compilerRoot = pathutil.Normalize(compilerRoot)
	}
	shimModules := pathutil.Join(compilerRoot, "node_modules")

	shims := make(map[string]string, 2*len(shimPackages))
	for name, pkg := range shimPackages {
		shims[name] = pathutil.Join(shimModules, pkg)
	}
	for _, name := range nodePrefixed {
		shims["node:"+name] = shims[name]
	}

	return &Catalog{
		ProjectRoot:        projectRoot,
		ProjectNodeModules: pathutil.Join(projectRoot, "node_modules"),
		CompilerRoot:       compilerRoot,
		ShimModules:        shimModules,
		Shims:              shims,
	}
}

// ShimNames lists the interposed specifiers in sorted order.
func (c *Catalog) ShimNames() []string {
	names := make([]string, 0, len(c.Shims))
	for name := range c.Shims {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
