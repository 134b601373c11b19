package modkind

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/frida/frida-compile/internal/syskit"
)

func TestDetectTypeModule(t *testing.T) {
	sys := syskit.NewMemory(map[string]string{
		"/p/node_modules/a/package.json": `{"name":"a","type":"module"}`,
		"/p/node_modules/a/index.js":     "",
	})
	assert.Equal(t, ESM, Detect(sys, "/p/node_modules/a/index.js"))
}

func TestDetectModuleField(t *testing.T) {
	sys := syskit.NewMemory(map[string]string{
		"/p/node_modules/a/package.json": `{"name":"a","main":"lib/a.js","module":"esm/a.js"}`,
		"/p/node_modules/a/esm/a.js":     "",
	})
	assert.Equal(t, ESM, Detect(sys, "/p/node_modules/a/esm/a.js"))
}

func TestDetectCommonJS(t *testing.T) {
	sys := syskit.NewMemory(map[string]string{
		"/p/node_modules/a/package.json": `{"name":"a","main":"index.js"}`,
		"/p/node_modules/a/index.js":     "",
	})
	assert.Equal(t, CJS, Detect(sys, "/p/node_modules/a/index.js"))
}

func TestDetectNearestManifestWins(t *testing.T) {
	sys := syskit.NewMemory(map[string]string{
		"/p/package.json":                  `{"type":"module"}`,
		"/p/node_modules/a/package.json":   `{"name":"a"}`,
		"/p/node_modules/a/lib/util.js":    "",
		"/p/node_modules/a/lib/extra.json": "{}",
	})
	assert.Equal(t, CJS, Detect(sys, "/p/node_modules/a/lib/util.js"))
}

func TestDetectNoManifest(t *testing.T) {
	sys := syskit.NewMemory(map[string]string{"/x/y.js": ""})
	assert.Equal(t, CJS, Detect(sys, "/x/y.js"))
}
