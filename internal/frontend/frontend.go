package frontend

// The compiler front-end is a collaborator behind a narrow contract:
// build a program from root files, emit per-file JavaScript through a
// write hook, and report diagnostics. A watch variant re-creates the
// program when project sources change. Nothing else in the repo knows
// which compiler sits behind this interface.

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/jsonc"

	"github.com/frida/frida-compile/internal/diag"
	"github.com/frida/frida-compile/internal/pathutil"
	"github.com/frida/frida-compile/internal/syskit"
)

type Options struct {
	// ProjectRoot anchors emitted asset names: a source at
	// <ProjectRoot>/a/b.ts emits as /a/b.js.
	ProjectRoot string

	// SourceMaps enables external map emission alongside each file.
	SourceMaps bool

	// Target is the ECMAScript level, "es2020" when empty. A project
	// tsconfig.json may override it; the module format, root dir, out
	// dir, and map mode are never overridable.
	Target string
}

// EmitWriteHook receives each emitted asset. Names are POSIX paths
// rooted at the project root with a leading slash.
type EmitWriteHook func(name string, contents string)

// Transformer rewrites emitted JavaScript before it reaches the write
// hook.
type Transformer func(code string) string

type Program interface {
	// Emit writes every compiled file (and its map, when enabled)
	// through the hook, applying the after-transformers to JS output.
	Emit(write EmitWriteHook, after []Transformer) []diag.Msg

	// SourceFiles lists the project sources the program was built from,
	// as absolute POSIX paths.
	SourceFiles() []string
}

type Frontend interface {
	CreateProgram(rootFiles []string, opts Options) (Program, []diag.Msg)
}

type WatchHooks struct {
	// OnStart fires when the front-end begins a (re)compilation.
	OnStart func()

	// AfterProgramCreate fires with each freshly created program,
	// including the initial one.
	AfterProgramCreate func(Program)
}

type WatchSession interface {
	// Program returns the latest program, synchronously.
	Program() Program

	Close() error
}

type WatchFrontend interface {
	Watch(rootFiles []string, opts Options, hooks WatchHooks) (WatchSession, error)
}

// StripUseStrict removes a top-level "use strict" directive. The
// directive prologue can only occupy the start of the file, so the
// rewrite never touches anything past it.
func StripUseStrict(code string) string {
	rest := code
	offset := 0
	for {
		trimmed := strings.TrimLeft(rest, " \t\r\n")
		offset += len(rest) - len(trimmed)
		rest = trimmed
		if strings.HasPrefix(rest, "//") {
			end := strings.IndexByte(rest, '\n')
			if end < 0 {
				return code
			}
			offset += end + 1
			rest = rest[end+1:]
			continue
		}
		if strings.HasPrefix(rest, "/*") {
			end := strings.Index(rest, "*/")
			if end < 0 {
				return code
			}
			offset += end + 2
			rest = rest[end+2:]
			continue
		}
		break
	}
	for _, directive := range []string{`"use strict"`, `'use strict'`} {
		if !strings.HasPrefix(rest, directive) {
			continue
		}
		tail := rest[len(directive):]
		semi := strings.TrimLeft(tail, " \t")
		if strings.HasPrefix(semi, ";") {
			semi = semi[1:]
		} else if semi != "" && !strings.HasPrefix(semi, "\n") && !strings.HasPrefix(semi, "\r") {
			// Not a directive statement after all.
			continue
		}
		semi = strings.TrimPrefix(strings.TrimPrefix(semi, "\r"), "\n")
		return code[:offset] + semi
	}
	return code
}

// softTargetFromTsconfig reads a project tsconfig.json and returns its
// compilerOptions.target, if any. tsconfig files routinely carry
// comments, so the text is run through a JSONC pass first.
func softTargetFromTsconfig(sys syskit.System, projectRoot string) string {
	contents, err := sys.ReadFile(pathutil.Join(projectRoot, "tsconfig.json"))
	if err != nil {
		return ""
	}
	doc := gjson.ParseBytes(jsonc.ToJSON([]byte(contents)))
	return strings.ToLower(doc.Get("compilerOptions.target").String())
}
