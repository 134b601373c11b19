package watcher

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frida/frida-compile/internal/bundler"
	"github.com/frida/frida-compile/internal/frontend"
	"github.com/frida/frida-compile/internal/syskit"
)

type counters struct {
	started  int
	finished int
	updated  int
	bundles  [][]byte
}

func startController(t *testing.T, files map[string]string) (*Controller, *syskit.Memory, *counters) {
	t.Helper()
	sys := syskit.NewMemory(files)
	fe := frontend.NewESBuild(sys)
	b := bundler.New(sys, fe, nil, bundler.Options{
		EntryPoint:  "/p/agent/index.ts",
		ProjectRoot: "/p",
	}, bundler.Events{})

	counts := &counters{}
	c, err := Start(sys, fe, b, Hooks{
		CompilationStarting: func() { counts.started++ },
		CompilationFinished: func() { counts.finished++ },
		BundleUpdated: func(bundle []byte) {
			counts.updated++
			counts.bundles = append(counts.bundles, bundle)
		},
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	// Let the initial next-tick pass run.
	sys.Advance(time.Millisecond)
	require.Equal(t, 1, counts.finished, "initial pass did not run")
	require.Equal(t, 1, counts.updated, "initial pass did not emit")
	return c, sys, counts
}

const depIndex = "/p/node_modules/dep/index.js"

func watchFiles() map[string]string {
	return map[string]string{
		"/p/agent/index.ts":                "import { v } from \"dep\";\nconsole.log(v);\n",
		"/p/node_modules/dep/package.json": `{"name":"dep","type":"module","main":"index.js"}`,
		depIndex:                           "export const v = 1;\n",
	}
}

func TestDebounceCoalescesBurst(t *testing.T) {
	c, sys, counts := startController(t, watchFiles())

	// Three change events inside the debounce window: t=0, 100, 200.
	sys.Touch(depIndex, "export const v = 2;\n")
	sys.Advance(100 * time.Millisecond)
	sys.Touch(depIndex, "export const v = 3;\n")
	sys.Advance(100 * time.Millisecond)
	sys.Touch(depIndex, "export const v = 4;\n")

	// The timer restarts with each event, so nothing runs before t=450.
	sys.Advance(249 * time.Millisecond)
	assert.Equal(t, 1, counts.finished)
	assert.Equal(t, StateDebouncing, c.State())

	sys.Advance(2 * time.Millisecond)
	assert.Equal(t, 2, counts.finished)
	assert.Equal(t, 2, counts.updated)
	assert.Equal(t, StateIdle, c.State())
	assert.Contains(t, string(counts.bundles[1]), "v = 4")
}

func TestSeparatedChangesRunSeparately(t *testing.T) {
	_, sys, counts := startController(t, watchFiles())

	sys.Touch(depIndex, "export const v = 2;\n")
	sys.Advance(300 * time.Millisecond)
	assert.Equal(t, 2, counts.finished)

	sys.Touch(depIndex, "export const v = 3;\n")
	sys.Advance(300 * time.Millisecond)
	assert.Equal(t, 3, counts.finished)
	assert.Equal(t, 3, counts.updated)
}

func TestNoOpPassSuppressesBundleUpdated(t *testing.T) {
	_, sys, counts := startController(t, watchFiles())

	// Rewrite the file with identical contents: the pass runs but the
	// bundle is byte-identical, so no update fires.
	sys.Touch(depIndex, "export const v = 1;\n")
	sys.Advance(300 * time.Millisecond)

	assert.Equal(t, 2, counts.finished)
	assert.Equal(t, 1, counts.updated)
}

func TestProjectSourceChangeTriggersPass(t *testing.T) {
	_, sys, counts := startController(t, watchFiles())

	sys.Touch("/p/agent/index.ts", "import { v } from \"dep\";\nconsole.log(v, v);\n")
	// The front-end recreates the program synchronously and the
	// controller schedules the pass on the next tick.
	sys.Advance(time.Millisecond)

	assert.Equal(t, 2, counts.started)
	assert.Equal(t, 2, counts.finished)
	assert.Equal(t, 2, counts.updated)
	assert.Contains(t, string(counts.bundles[1]), "console.log(v, v)")
}

func TestBrokenPassKeepsPreviousBundle(t *testing.T) {
	_, sys, counts := startController(t, watchFiles())

	// Reference a package that does not exist: the pass fails, nothing
	// is emitted, and the controller stays alive.
	sys.Touch("/p/agent/index.ts", "import \"ghost\";\n")
	sys.Advance(time.Millisecond)
	assert.Equal(t, 2, counts.finished)
	assert.Equal(t, 1, counts.updated)

	// Fixing the source recovers: the pass succeeds and, as its bundle
	// differs from the last emitted one, an update fires.
	sys.Touch("/p/agent/index.ts", "import { v } from \"dep\";\nconsole.log(v, v);\n")
	sys.Advance(time.Millisecond)
	assert.Equal(t, 3, counts.finished)
	assert.Equal(t, 2, counts.updated)
}

func TestCloseCancelsEverything(t *testing.T) {
	c, sys, counts := startController(t, watchFiles())

	require.NoError(t, c.Close())
	sys.Touch(depIndex, "export const v = 9;\n")
	sys.Advance(time.Second)

	assert.Equal(t, 1, counts.finished)
	assert.Equal(t, 1, counts.updated)
}
