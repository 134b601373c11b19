package resolver

// Node-style resolution against the shim catalog and the project's
// node_modules. The "module" manifest field is preferred over "main" so
// ESM-first packages stay in ESM form and never hit the CommonJS path.

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/frida/frida-compile/internal/catalog"
	"github.com/frida/frida-compile/internal/pathutil"
	"github.com/frida/frida-compile/internal/syskit"
)

// Result is a successful resolution. NeedsAlias is set whenever the
// reference string is not mechanically derivable from the resolved
// asset name, so the loader needs an alias entry to find the module.
type Result struct {
	Path       string
	NeedsAlias bool
}

type UnresolvableError struct {
	Name string
}

func (e *UnresolvableError) Error() string {
	return fmt.Sprintf("unable to resolve %q", e.Name)
}

type Resolver struct {
	sys syskit.System
	cat *catalog.Catalog
}

func New(sys syskit.System, cat *catalog.Catalog) *Resolver {
	return &Resolver{sys: sys, cat: cat}
}

// splitPackageName separates a bare specifier into its package name and
// subpath. Scoped packages keep their first two segments together.
func splitPackageName(name string) (pkg string, subpath string) {
	tokens := strings.Split(name, "/")
	take := 1
	if strings.HasPrefix(tokens[0], "@") && len(tokens) > 1 {
		take = 2
	}
	return strings.Join(tokens[:take], "/"), strings.Join(tokens[take:], "/")
}

// Resolve maps a reference to a concrete file. The referrer decides
// which node_modules tree bare specifiers are looked up in.
func (r *Resolver) Resolve(name string, referrerPath string) (Result, error) {
	var current string
	needsAlias := false

	if pathutil.IsAbs(name) {
		current = pathutil.Normalize(name)
	} else {
		pkg, subpath := splitPackageName(name)
		if shimRoot, ok := r.cat.Shims[pkg]; ok {
			needsAlias = true
			if strings.HasSuffix(shimRoot, ".js") {
				current = shimRoot
			} else {
				current = pathutil.Join(shimRoot, subpath)
			}
		} else {
			base := r.cat.ProjectNodeModules
			if r.referrerUsesShimTree(referrerPath) {
				base = r.cat.ShimModules
			}
			current = pathutil.Join(base, name)
			needsAlias = subpath != ""
		}
	}

	// A directory with a manifest redirects through module/main.
	if r.sys.DirExists(current) {
		manifest := pathutil.Join(current, "package.json")
		if contents, err := r.sys.ReadFile(manifest); err == nil {
			doc := gjson.Parse(contents)
			entry := doc.Get("module").String()
			if entry == "" {
				entry = doc.Get("main").String()
			}
			if entry == "" {
				entry = "index.js"
			}
			current = pathutil.Join(current, entry)
			if r.sys.DirExists(current) {
				current = pathutil.Join(current, "index.js")
			}
			needsAlias = true
		} else {
			current = pathutil.Join(current, "index.js")
		}
	}

	if !r.sys.FileExists(current) {
		withExt := current + ".js"
		if !r.sys.FileExists(withExt) {
			return Result{}, &UnresolvableError{Name: name}
		}
		current = withExt
	}

	return Result{Path: current, NeedsAlias: needsAlias}, nil
}

// referrerUsesShimTree reports whether a referrer's own dependencies
// live under the compiler's node_modules rather than the project's.
func (r *Resolver) referrerUsesShimTree(referrerPath string) bool {
	if referrerPath == "" {
		return false
	}
	compilerInstall := pathutil.Join(r.cat.ProjectNodeModules, catalog.CompilerPackageName)
	return pathutil.HasPrefix(referrerPath, r.cat.CompilerRoot) ||
		pathutil.HasPrefix(referrerPath, r.cat.ShimModules) ||
		pathutil.HasPrefix(referrerPath, compilerInstall)
}
