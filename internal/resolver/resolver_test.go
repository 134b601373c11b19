package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frida/frida-compile/internal/catalog"
	"github.com/frida/frida-compile/internal/syskit"
)

const projectRoot = "/p"

func newResolver(files map[string]string) (*Resolver, *catalog.Catalog) {
	cat := catalog.Load(projectRoot, "")
	sys := syskit.NewMemory(files)
	return New(sys, cat), cat
}

func TestResolveAbsolutePath(t *testing.T) {
	r, _ := newResolver(map[string]string{"/p/agent/greet.js": ""})

	res, err := r.Resolve("/p/agent/greet.js", "/p/agent/index.js")
	require.NoError(t, err)
	assert.Equal(t, "/p/agent/greet.js", res.Path)
	assert.False(t, res.NeedsAlias)
}

func TestResolveMissingExtension(t *testing.T) {
	r, _ := newResolver(map[string]string{"/p/agent/greet.js": ""})

	res, err := r.Resolve("/p/agent/greet", "/p/agent/index.js")
	require.NoError(t, err)
	assert.Equal(t, "/p/agent/greet.js", res.Path)
	assert.False(t, res.NeedsAlias)
}

func TestResolveDirectoryIndex(t *testing.T) {
	r, _ := newResolver(map[string]string{"/p/agent/util/index.js": ""})

	res, err := r.Resolve("/p/agent/util", "/p/agent/index.js")
	require.NoError(t, err)
	assert.Equal(t, "/p/agent/util/index.js", res.Path)
	assert.False(t, res.NeedsAlias)
}

func TestResolveShim(t *testing.T) {
	shim := "/p/node_modules/frida-compile/node_modules/@frida/buffer"
	r, _ := newResolver(map[string]string{
		shim + "/package.json": `{"name":"@frida/buffer","main":"index.js"}`,
		shim + "/index.js":     "",
	})

	res, err := r.Resolve("buffer", "/p/agent/index.js")
	require.NoError(t, err)
	assert.Equal(t, shim+"/index.js", res.Path)
	assert.True(t, res.NeedsAlias)

	// The node:-prefixed alias lands on the same file.
	res2, err := r.Resolve("node:buffer", "/p/agent/index.js")
	require.NoError(t, err)
	assert.Equal(t, res.Path, res2.Path)
	assert.True(t, res2.NeedsAlias)
}

func TestResolvePackageModuleFieldPreferred(t *testing.T) {
	r, _ := newResolver(map[string]string{
		"/p/node_modules/pkg/package.json": `{"main":"lib/index.js","module":"esm/index.js"}`,
		"/p/node_modules/pkg/lib/index.js": "",
		"/p/node_modules/pkg/esm/index.js": "",
	})

	res, err := r.Resolve("pkg", "/p/agent/index.js")
	require.NoError(t, err)
	assert.Equal(t, "/p/node_modules/pkg/esm/index.js", res.Path)
	assert.True(t, res.NeedsAlias)
}

func TestResolvePackageMainFallback(t *testing.T) {
	r, _ := newResolver(map[string]string{
		"/p/node_modules/pkg/package.json": `{"main":"lib/main.js"}`,
		"/p/node_modules/pkg/lib/main.js":  "",
	})

	res, err := r.Resolve("pkg", "/p/agent/index.js")
	require.NoError(t, err)
	assert.Equal(t, "/p/node_modules/pkg/lib/main.js", res.Path)
	assert.True(t, res.NeedsAlias)
}

func TestResolvePackageMainDirectory(t *testing.T) {
	r, _ := newResolver(map[string]string{
		"/p/node_modules/pkg/package.json": `{"main":"lib"}`,
		"/p/node_modules/pkg/lib/index.js": "",
	})

	res, err := r.Resolve("pkg", "/p/agent/index.js")
	require.NoError(t, err)
	assert.Equal(t, "/p/node_modules/pkg/lib/index.js", res.Path)
	assert.True(t, res.NeedsAlias)
}

func TestResolveSubpathNeedsAlias(t *testing.T) {
	r, _ := newResolver(map[string]string{
		"/p/node_modules/pkg/helpers/math.js": "",
	})

	res, err := r.Resolve("pkg/helpers/math.js", "/p/agent/index.js")
	require.NoError(t, err)
	assert.Equal(t, "/p/node_modules/pkg/helpers/math.js", res.Path)
	assert.True(t, res.NeedsAlias)
}

func TestResolveScopedPackage(t *testing.T) {
	r, _ := newResolver(map[string]string{
		"/p/node_modules/@scope/pkg/package.json": `{"main":"index.js"}`,
		"/p/node_modules/@scope/pkg/index.js":     "",
		"/p/node_modules/@scope/pkg/sub/x.js":     "",
	})

	res, err := r.Resolve("@scope/pkg", "/p/agent/index.js")
	require.NoError(t, err)
	assert.Equal(t, "/p/node_modules/@scope/pkg/index.js", res.Path)

	res, err = r.Resolve("@scope/pkg/sub/x.js", "/p/agent/index.js")
	require.NoError(t, err)
	assert.Equal(t, "/p/node_modules/@scope/pkg/sub/x.js", res.Path)
	assert.True(t, res.NeedsAlias)
}

func TestResolveShimTreeReferrer(t *testing.T) {
	shimModules := "/p/node_modules/frida-compile/node_modules"
	r, _ := newResolver(map[string]string{
		shimModules + "/@frida/buffer/package.json": `{"main":"index.js"}`,
		shimModules + "/@frida/buffer/index.js":     "",
		shimModules + "/dep/index.js":               "",
	})

	// A shim importing "dep" stays inside the compiler's tree.
	res, err := r.Resolve("dep", shimModules+"/@frida/buffer/index.js")
	require.NoError(t, err)
	assert.Equal(t, shimModules+"/dep/index.js", res.Path)
	assert.False(t, res.NeedsAlias)
}

func TestResolveUnresolvable(t *testing.T) {
	r, _ := newResolver(map[string]string{"/p/agent/index.js": ""})

	_, err := r.Resolve("missing-pkg", "/p/agent/index.js")
	var unresolvable *UnresolvableError
	require.ErrorAs(t, err, &unresolvable)
	assert.Equal(t, "missing-pkg", unresolvable.Name)
}

func TestResolveDeterministic(t *testing.T) {
	r, _ := newResolver(map[string]string{
		"/p/node_modules/pkg/package.json": `{"main":"lib/main.js"}`,
		"/p/node_modules/pkg/lib/main.js":  "",
	})

	first, err := r.Resolve("pkg", "/p/agent/index.js")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := r.Resolve("pkg", "/p/agent/index.js")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
