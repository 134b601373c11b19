package frontend

import (
	"sort"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/frida/frida-compile/internal/diag"
	"github.com/frida/frida-compile/internal/modkind"
	"github.com/frida/frida-compile/internal/pathutil"
	"github.com/frida/frida-compile/internal/scanner"
	"github.com/frida/frida-compile/internal/sourcemap"
	"github.com/frida/frida-compile/internal/syskit"
)

// ESBuild is the default front-end: a transpile-only TypeScript
// compiler built on esbuild's transform API. Each project source is
// compiled to an ES module on its own; the module graph is the
// bundler's business.
type ESBuild struct {
	sys syskit.System
}

func NewESBuild(sys syskit.System) *ESBuild {
	return &ESBuild{sys: sys}
}

var targets = map[string]api.Target{
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

var loaders = map[string]api.Loader{
	".ts":  api.LoaderTS,
	".tsx": api.LoaderTSX,
	".js":  api.LoaderJS,
	".jsx": api.LoaderJSX,
	".mjs": api.LoaderJS,
}

// sourceExtensions is the probe order for extensionless project
// references, mirroring the compiler's own resolution.
var sourceExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs"}

type emittedFile struct {
	name string // asset name of the compiled JS, e.g. /agent/index.js
	code string
	smap string // empty when maps are disabled
}

type esbuildProgram struct {
	sources []string // absolute POSIX paths, sorted
	files   []emittedFile
}

func (p *esbuildProgram) SourceFiles() []string {
	return p.sources
}

func (p *esbuildProgram) Emit(write EmitWriteHook, after []Transformer) []diag.Msg {
	for _, file := range p.files {
		code := file.code
		for _, transform := range after {
			code = transform(code)
		}
		write(file.name, code)
		if file.smap != "" {
			write(file.name+".map", file.smap)
		}
	}
	return nil
}

func (f *ESBuild) CreateProgram(rootFiles []string, opts Options) (Program, []diag.Msg) {
	projectRoot := pathutil.Normalize(opts.ProjectRoot)

	target := api.ES2020
	if name := opts.Target; name != "" {
		if t, ok := targets[strings.ToLower(name)]; ok {
			target = t
		}
	} else if name := softTargetFromTsconfig(f.sys, projectRoot); name != "" {
		if t, ok := targets[name]; ok {
			target = t
		}
	}

	program := &esbuildProgram{}
	var msgs []diag.Msg
	visited := make(map[string]bool)
	queue := make([]string, 0, len(rootFiles))
	for _, root := range rootFiles {
		queue = append(queue, pathutil.Normalize(root))
	}

	for len(queue) > 0 {
		source := queue[0]
		queue = queue[1:]
		if visited[source] {
			continue
		}
		visited[source] = true

		code, err := f.sys.ReadFile(source)
		if err != nil {
			msgs = append(msgs, diag.Msg{Kind: diag.Error, Text: "cannot read " + source})
			continue
		}

		loader, ok := loaders[pathutil.Ext(source)]
		if !ok {
			loader = api.LoaderTS
		}

		result := api.Transform(code, api.TransformOptions{
			Loader:     loader,
			Format:     api.FormatESModule,
			Target:     target,
			Sourcefile: source,
			Sourcemap:  sourcemapMode(opts.SourceMaps),
			SourceRoot: projectRoot + "/",
			LogLevel:   api.LogLevelSilent,
		})
		for _, message := range result.Errors {
			msgs = append(msgs, convertMessage(message, diag.Error))
		}
		for _, message := range result.Warnings {
			msgs = append(msgs, convertMessage(message, diag.Warning))
		}
		if len(result.Errors) > 0 {
			continue
		}

		name := assetName(projectRoot, source)
		file := emittedFile{name: name, code: string(result.Code)}
		if opts.SourceMaps {
			file.smap = rebaseEmittedMap(string(result.Map), projectRoot, name)
		}
		program.files = append(program.files, file)
		program.sources = append(program.sources, source)

		for _, next := range f.projectReferences(projectRoot, source, file.code) {
			if !visited[next] {
				queue = append(queue, next)
			}
		}
	}

	sort.Strings(program.sources)
	sort.Slice(program.files, func(i int, j int) bool {
		return program.files[i].name < program.files[j].name
	})
	return program, msgs
}

func sourcemapMode(enabled bool) api.SourceMap {
	if enabled {
		return api.SourceMapExternal
	}
	return api.SourceMapNone
}

// assetName derives the emitted name of a project source: the
// project-relative path with the source extension rewritten to .js.
func assetName(projectRoot string, source string) string {
	name := pathutil.TrimPrefix(source, projectRoot)
	ext := pathutil.Ext(name)
	if ext != "" && ext != ".js" {
		name = name[:len(name)-len(ext)] + ".js"
	}
	return name
}

// rebaseEmittedMap pins the emitted map's sources to the project root
// so every map this front-end emits shares one coordinate space.
func rebaseEmittedMap(text string, projectRoot string, name string) string {
	m, err := sourcemap.Parse(text)
	if err != nil {
		return text
	}
	m.File = pathutil.Base(name)
	m.SourceRoot = projectRoot + "/"
	for i, entry := range m.Sources {
		m.Sources[i] = strings.TrimPrefix(pathutil.TrimPrefix(entry, projectRoot), "/")
	}
	return m.String()
}

// projectReferences scans freshly emitted JS for relative references
// that land on further project sources. Bare specifiers are left for
// the bundler's resolver.
func (f *ESBuild) projectReferences(projectRoot string, source string, code string) []string {
	ast, err := scanner.Parse(code)
	if err != nil {
		return nil
	}
	refs := scanner.Collect(ast, modkind.ESM, pathutil.Dir(source))

	var found []string
	for _, ref := range refs.Modules {
		if !pathutil.IsAbs(ref) {
			continue
		}
		if !pathutil.HasPrefix(ref, projectRoot) ||
			pathutil.HasPrefix(ref, pathutil.Join(projectRoot, "node_modules")) {
			continue
		}
		if resolved, ok := f.resolveSourceFile(ref); ok {
			found = append(found, resolved)
		}
	}
	return found
}

// resolveSourceFile probes the candidate spellings of a project-source
// reference. TS sources may be referenced with a .js suffix.
func (f *ESBuild) resolveSourceFile(ref string) (string, bool) {
	candidates := []string{ref}
	if ext := pathutil.Ext(ref); ext == "" {
		for _, probe := range sourceExtensions {
			candidates = append(candidates, ref+probe)
		}
		for _, probe := range sourceExtensions {
			candidates = append(candidates, pathutil.Join(ref, "index"+probe))
		}
	} else if ext == ".js" {
		stem := ref[:len(ref)-len(ext)]
		candidates = append(candidates, stem+".ts", stem+".tsx")
	}
	for _, candidate := range candidates {
		if f.sys.FileExists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func convertMessage(message api.Message, kind diag.Kind) diag.Msg {
	msg := diag.Msg{Kind: kind, Text: message.Text}
	if message.Location != nil {
		msg.Location = &diag.Location{
			File:     message.Location.File,
			Line:     message.Location.Line,
			Column:   message.Location.Column,
			Length:   message.Location.Length,
			LineText: message.Location.LineText,
		}
	}
	return msg
}

// esbuildWatchSession re-creates the program whenever one of its
// source files changes. Watches follow the program: files discovered
// by a rebuild are watched, files that drop out are released.
type esbuildWatchSession struct {
	frontend *ESBuild
	roots    []string
	opts     Options
	hooks    WatchHooks

	mu      sync.Mutex
	program Program
	watches map[string]syskit.Subscription
	closed  bool
}

func (f *ESBuild) Watch(rootFiles []string, opts Options, hooks WatchHooks) (WatchSession, error) {
	session := &esbuildWatchSession{
		frontend: f,
		roots:    rootFiles,
		opts:     opts,
		hooks:    hooks,
		watches:  make(map[string]syskit.Subscription),
	}
	session.recreate()
	return session, nil
}

func (s *esbuildWatchSession) recreate() {
	if s.hooks.OnStart != nil {
		s.hooks.OnStart()
	}
	program, _ := s.frontend.CreateProgram(s.roots, s.opts)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.program = program
	s.syncWatchesLocked(program.SourceFiles())
	s.mu.Unlock()

	if s.hooks.AfterProgramCreate != nil {
		s.hooks.AfterProgramCreate(program)
	}
}

func (s *esbuildWatchSession) syncWatchesLocked(sources []string) {
	wanted := make(map[string]bool, len(sources))
	for _, source := range sources {
		wanted[source] = true
		if _, ok := s.watches[source]; ok {
			continue
		}
		path := source
		sub, err := s.frontend.sys.Watch(path, func(syskit.Event) {
			s.recreate()
		})
		if err == nil {
			s.watches[path] = sub
		}
	}
	for path, sub := range s.watches {
		if !wanted[path] {
			sub.Close()
			delete(s.watches, path)
		}
	}
}

func (s *esbuildWatchSession) Program() Program {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.program
}

func (s *esbuildWatchSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for path, sub := range s.watches {
		sub.Close()
		delete(s.watches, path)
	}
	return nil
}
