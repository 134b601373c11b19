package bundler

// The bundler owns the module graph: it drives the front-end emit,
// scans every module for references, resolves them to concrete files,
// and keeps the table of assets the assembler will serialize. External
// modules are cached across passes; the watch controller invalidates
// individual files as they change.

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tdewolff/parse/v2/js"

	"github.com/frida/frida-compile/internal/assembler"
	"github.com/frida/frida-compile/internal/catalog"
	"github.com/frida/frida-compile/internal/diag"
	"github.com/frida/frida-compile/internal/frontend"
	"github.com/frida/frida-compile/internal/jsonmodule"
	"github.com/frida/frida-compile/internal/minifier"
	"github.com/frida/frida-compile/internal/modkind"
	"github.com/frida/frida-compile/internal/pathutil"
	"github.com/frida/frida-compile/internal/resolver"
	"github.com/frida/frida-compile/internal/scanner"
	"github.com/frida/frida-compile/internal/sourcemap"
	"github.com/frida/frida-compile/internal/syskit"
)

type Options struct {
	// EntryPoint is the absolute POSIX path of the user's entry source.
	EntryPoint string

	// ProjectRoot anchors project asset names. Defaults to the entry
	// point's directory.
	ProjectRoot string

	// CompilerRoot is where the shim catalog lives. Defaults to the
	// conventional install location under the project's node_modules.
	CompilerRoot string

	SourceMaps bool
	Minify     bool
}

// Events let the watch controller track graph growth.
type Events struct {
	// ExternalSourceFileAdded fires once for each dependency file
	// discovered outside the front-end's project sources.
	ExternalSourceFileAdded func(path string)
}

// CJSTransformer is the optional cjs-to-esm stage. When absent,
// reachable CommonJS modules are an error.
type CJSTransformer func(path string, code string) (string, error)

// Module is one entry of the module table.
type Module struct {
	Kind     modkind.Kind
	Path     string
	Source   *js.AST
	Aliases  map[string]bool
	External bool
}

func (m *Module) sortedAliases() []string {
	names := make([]string, 0, len(m.Aliases))
	for name := range m.Aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type jsonRef struct {
	name     string
	referrer string
}

type Bundler struct {
	sys      syskit.System
	fe       frontend.Frontend
	min      minifier.Minifier
	cat      *catalog.Catalog
	res      *resolver.Resolver
	opts     Options
	events   Events
	cjsToESM CJSTransformer

	// Caches surviving across watch passes. sources holds the raw text
	// of every asset; rewrites happen into a per-pass output table so
	// a cached module is never rewritten twice.
	modules    map[string]*Module // by file path
	sources    map[string]string  // by asset name
	pathByName map[string]string  // asset name -> file path
	processed  map[string]bool    // reference strings and file paths
	refsByPath map[string][]string
	jsonRefs   map[string]jsonRef // by normalized reference name
}

func New(sys syskit.System, fe frontend.Frontend, min minifier.Minifier, opts Options, events Events) *Bundler {
	opts.EntryPoint = pathutil.Normalize(opts.EntryPoint)
	if opts.ProjectRoot == "" {
		opts.ProjectRoot = pathutil.Dir(opts.EntryPoint)
	} else {
		opts.ProjectRoot = pathutil.Normalize(opts.ProjectRoot)
	}
	cat := catalog.Load(opts.ProjectRoot, opts.CompilerRoot)

	return &Bundler{
		sys:        sys,
		fe:         fe,
		min:        min,
		cat:        cat,
		res:        resolver.New(sys, cat),
		opts:       opts,
		events:     events,
		modules:    make(map[string]*Module),
		sources:    make(map[string]string),
		pathByName: make(map[string]string),
		processed:  make(map[string]bool),
		refsByPath: make(map[string][]string),
		jsonRefs:   make(map[string]jsonRef),
	}
}

// SetCJSTransformer installs the optional cjs-to-esm stage.
func (b *Bundler) SetCJSTransformer(t CJSTransformer) {
	b.cjsToESM = t
}

// OnExternalSourceFileAdded registers the discovery callback the watch
// controller uses to subscribe file watches.
func (b *Bundler) OnExternalSourceFileAdded(fn func(path string)) {
	b.events.ExternalSourceFileAdded = fn
}

// Options returns the bundler's resolved options (entry point and
// project root normalized, defaults applied).
func (b *Bundler) Options() Options {
	return b.opts
}

// EntryAssetName is the normalized output name of the entry point's
// compiled JS.
func (b *Bundler) EntryAssetName() string {
	name := pathutil.TrimPrefix(b.opts.EntryPoint, b.opts.ProjectRoot)
	ext := pathutil.Ext(name)
	if ext != "" && ext != ".js" {
		name = name[:len(name)-len(ext)] + ".js"
	}
	return name
}

// Bundle runs a full one-shot pass: program creation, emit, traversal,
// rewrite, assembly.
func (b *Bundler) Bundle() ([]byte, []diag.Msg, error) {
	program, msgs := b.fe.CreateProgram([]string{b.opts.EntryPoint}, b.FrontendOptions())
	if diag.HasErrors(msgs) {
		diag.Sort(msgs)
		return nil, msgs, &CompileError{Msgs: msgs}
	}
	bundle, passMsgs, err := b.BundleProgram(program)
	msgs = append(msgs, passMsgs...)
	return bundle, msgs, err
}

// FrontendOptions is the compiler-options baseline handed to the
// front-end.
func (b *Bundler) FrontendOptions() frontend.Options {
	return frontend.Options{
		ProjectRoot: b.opts.ProjectRoot,
		SourceMaps:  b.opts.SourceMaps,
	}
}

// BundleProgram runs one pass against an already created program. The
// watch controller calls this with the front-end watcher's latest
// program.
func (b *Bundler) BundleProgram(program frontend.Program) ([]byte, []diag.Msg, error) {
	var msgs []diag.Msg

	// Project sources are re-emitted from scratch every pass; stale
	// records would otherwise survive a file rename or delete.
	for name, path := range b.pathByName {
		if module, ok := b.modules[path]; ok && !module.External {
			delete(b.modules, path)
			delete(b.sources, name)
			delete(b.sources, name+".map")
			delete(b.pathByName, name)
			delete(b.processed, path)
			delete(b.processed, name)
		}
	}

	var projectModules []*Module
	emitMsgs := program.Emit(func(name string, contents string) {
		if strings.HasSuffix(name, ".map") {
			b.sources[name] = contents
			return
		}
		path := pathutil.Join(b.opts.ProjectRoot, name)
		ast, err := scanner.Parse(contents)
		if err != nil {
			msgs = append(msgs, diag.Msg{
				Kind: diag.Error,
				Text: fmt.Sprintf("internal: emitted file %s does not parse: %v", name, err),
			})
			return
		}
		module := &Module{Kind: modkind.ESM, Path: path, Source: ast, Aliases: make(map[string]bool)}
		b.modules[path] = module
		b.sources[name] = contents
		b.pathByName[name] = path
		b.processed[name] = true
		b.processed[path] = true
		projectModules = append(projectModules, module)
	}, []frontend.Transformer{frontend.StripUseStrict})
	msgs = append(msgs, emitMsgs...)
	if diag.HasErrors(msgs) {
		diag.Sort(msgs)
		return nil, msgs, &CompileError{Msgs: msgs}
	}

	// Traversal: scan, then drain the pending queue until the graph
	// closes. Resolution failures accumulate so one pass reports every
	// broken reference at once.
	type pending struct {
		name     string
		referrer string
	}
	var queue []pending
	missing := make(map[string]bool)

	enqueue := func(refs scanner.Refs, referrer string) {
		for _, name := range refs.Modules {
			queue = append(queue, pending{name: name, referrer: referrer})
		}
		for _, name := range refs.JSON {
			b.jsonRefs[name] = jsonRef{name: name, referrer: referrer}
		}
	}

	for _, module := range projectModules {
		enqueue(scanner.Collect(module.Source, module.Kind, pathutil.Dir(module.Path)), module.Path)
	}

	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		if missing[ref.name] || b.processed[ref.name] {
			continue
		}
		b.processed[ref.name] = true

		result, err := b.res.Resolve(ref.name, ref.referrer)
		if err != nil && pathutil.IsAbs(ref.name) {
			// Emitted project sources live in the module table, not on
			// disk as .js files; probe them the way the resolver probes
			// files (missing .js suffix, directory index).
			for _, candidate := range []string{ref.name + ".js", pathutil.Join(ref.name, "index.js")} {
				if emitted, ok := b.modules[candidate]; ok && !emitted.External {
					result, err = resolver.Result{Path: candidate}, nil
					break
				}
			}
		}
		if err != nil {
			missing[ref.name] = true
			// A later pass may succeed once the file appears.
			delete(b.processed, ref.name)
			continue
		}
		path := result.Path
		if real, err := b.sys.RealPath(path); err == nil {
			path = real
		}
		b.refsByPath[path] = append(b.refsByPath[path], ref.name)

		module, ok := b.modules[path]
		if !ok {
			name := b.assetNameFor(path)
			if other, taken := b.pathByName[name]; taken && other != path {
				return nil, msgs, fmt.Errorf("asset name %s claimed by both %s and %s", name, other, path)
			}
			contents, err := b.sys.ReadFile(path)
			if err != nil {
				return nil, msgs, fmt.Errorf("reading %s: %w", path, err)
			}
			contents = frontend.StripUseStrict(contents)
			ast, parseErr := scanner.Parse(contents)
			if parseErr != nil {
				msgs = append(msgs, diag.Msg{
					Kind:     diag.Error,
					Text:     fmt.Sprintf("parse error: %v", parseErr),
					Location: &diag.Location{File: path, Line: 1},
				})
				continue
			}
			module = &Module{
				Kind:     modkind.Detect(b.sys, path),
				Path:     path,
				Source:   ast,
				Aliases:  make(map[string]bool),
				External: true,
			}
			b.modules[path] = module
			b.sources[name] = contents
			b.pathByName[name] = path
			b.processed[path] = true
			if b.events.ExternalSourceFileAdded != nil {
				b.events.ExternalSourceFileAdded(path)
			}
			enqueue(scanner.Collect(ast, module.Kind, pathutil.Dir(path)), path)
		}

		if result.NeedsAlias {
			module.Aliases[b.aliasFor(ref.name)] = true
		}
	}

	// JSON references resolve late so the JS graph is complete first.
	jsonAliases := make(map[string][]string)
	jsonNames := make([]string, 0, len(b.jsonRefs))
	for name := range b.jsonRefs {
		jsonNames = append(jsonNames, name)
	}
	sort.Strings(jsonNames)
	type jsonAsset struct {
		name string
		path string
	}
	var jsonAssets []jsonAsset
	for _, refName := range jsonNames {
		ref := b.jsonRefs[refName]
		result, err := b.res.Resolve(ref.name, ref.referrer)
		if err != nil {
			missing[ref.name] = true
			continue
		}
		name := b.assetNameFor(result.Path)
		b.pathByName[name] = result.Path
		jsonAssets = append(jsonAssets, jsonAsset{name: name, path: result.Path})
		if result.NeedsAlias {
			jsonAliases[name] = append(jsonAliases[name], b.aliasFor(ref.name))
		}
	}

	if diag.HasErrors(msgs) {
		diag.Sort(msgs)
		return nil, msgs, &CompileError{Msgs: msgs}
	}
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for name := range missing {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, msgs, &UnresolvableError{Names: names}
	}

	// The graph is closed; CommonJS modules are either transformed by
	// the optional external stage or rejected.
	if err := b.settleCommonJS(); err != nil {
		return nil, msgs, err
	}

	for _, asset := range jsonAssets {
		if _, ok := b.sources[asset.name]; !ok {
			contents, err := b.sys.ReadFile(asset.path)
			if err != nil {
				return nil, msgs, fmt.Errorf("reading %s: %w", asset.path, err)
			}
			b.sources[asset.name] = contents
		}
	}

	out, err := b.rewriteAssets()
	if err != nil {
		return nil, msgs, err
	}

	aliases := make(map[string][]string)
	for name, path := range b.pathByName {
		if module, ok := b.modules[path]; ok && len(module.Aliases) > 0 {
			aliases[name] = module.sortedAliases()
		}
	}
	for name, list := range jsonAliases {
		aliases[name] = append(aliases[name], list...)
	}

	return assembler.Assemble(out, aliases, b.EntryAssetName()), msgs, nil
}

// settleCommonJS applies the optional cjs-to-esm transformer, or fails
// with the sorted offender list.
func (b *Bundler) settleCommonJS() error {
	var cjsPaths []string
	for path, module := range b.modules {
		if module.Kind == modkind.CJS {
			cjsPaths = append(cjsPaths, path)
		}
	}
	if len(cjsPaths) == 0 {
		return nil
	}
	sort.Strings(cjsPaths)

	if b.cjsToESM == nil {
		return &CommonJSError{Paths: cjsPaths}
	}
	for _, path := range cjsPaths {
		module := b.modules[path]
		name := b.assetNameFor(path)
		converted, err := b.cjsToESM(path, b.sources[name])
		if err != nil {
			return fmt.Errorf("cjs-to-esm %s: %w", path, err)
		}
		ast, err := scanner.Parse(converted)
		if err != nil {
			return fmt.Errorf("cjs-to-esm %s: output does not parse: %w", path, err)
		}
		module.Kind = modkind.ESM
		module.Source = ast
		b.sources[name] = converted
	}
	return nil
}

// rewriteAssets produces the per-pass output table: source-map trimming
// and materialization, minification, JSON modularization. Raw sources
// are left untouched so the next pass starts clean.
func (b *Bundler) rewriteAssets() (map[string]string, error) {
	names := make([]string, 0, len(b.sources))
	for name := range b.sources {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]string, len(b.sources))
	for _, name := range names {
		contents := b.sources[name]
		switch {
		case strings.HasSuffix(name, ".map"):
			// Emitted by the peer .js below.
		case strings.HasSuffix(name, ".js"):
			code, mapText, err := b.rewriteJS(name, contents)
			if err != nil {
				return nil, err
			}
			out[name] = code
			if mapText != "" && b.opts.SourceMaps {
				out[name+".map"] = mapText
			}
		case strings.HasSuffix(name, ".json"):
			synthesized, err := jsonmodule.Synthesize(contents)
			if err != nil {
				return nil, fmt.Errorf("json module %s: %w", name, err)
			}
			out[name] = synthesized
		default:
			out[name] = contents
		}
	}
	return out, nil
}

// rewriteJS strips a trailing sourceMappingURL line, materializes the
// referenced map when maps are on, then hands the code to the minifier.
func (b *Bundler) rewriteJS(name string, code string) (string, string, error) {
	origin := b.originPath(name)
	mapText := b.sources[name+".map"]

	trimmed, url, found := sourcemap.TrimMappingURL(code)
	code = trimmed
	if found && b.opts.SourceMaps && mapText == "" {
		if sourcemap.IsDataURL(url) {
			if decoded, err := b.sys.DecodeBase64(sourcemap.DataURLPayload(url)); err == nil {
				mapText = string(decoded)
			}
		} else if !strings.HasPrefix(url, "data:") {
			sibling := pathutil.Join(pathutil.Dir(origin), url)
			if contents, err := b.sys.ReadFile(sibling); err == nil {
				mapText = contents
			}
		}
	}

	if b.opts.Minify && b.min != nil {
		var mapOpts *minifier.SourceMapOptions
		if b.opts.SourceMaps {
			mapOpts = &minifier.SourceMapOptions{
				Root:     pathutil.Dir(origin) + "/",
				Filename: pathutil.Base(name),
			}
			if mapText != "" {
				if parsed, err := sourcemap.Parse(mapText); err == nil {
					mapOpts.Content = parsed
				}
			}
		}
		result, err := b.min.Minify(origin, code, minifier.Options{SourceMap: mapOpts})
		if err != nil {
			return "", "", err
		}
		code = result.Code
		if result.Map != nil {
			mapText = result.Map.String()
		}
	}

	return code, mapText, nil
}

// originPath recovers the file path behind an asset name.
func (b *Bundler) originPath(name string) string {
	if path, ok := b.pathByName[name]; ok {
		return path
	}
	return pathutil.Join(b.opts.ProjectRoot, name)
}

// assetNameFor derives an asset name by stripping the compiler root or
// the project root, whichever matches first.
func (b *Bundler) assetNameFor(path string) string {
	if pathutil.HasPrefix(path, b.cat.CompilerRoot) {
		return pathutil.TrimPrefix(path, b.cat.CompilerRoot)
	}
	return pathutil.TrimPrefix(path, b.opts.ProjectRoot)
}

// aliasFor is the canonical alias text for a reference: absolute
// project-rooted references lose the project-root prefix.
func (b *Bundler) aliasFor(refName string) string {
	if pathutil.IsAbs(refName) && pathutil.HasPrefix(refName, b.opts.ProjectRoot) {
		return pathutil.TrimPrefix(refName, b.opts.ProjectRoot)
	}
	return refName
}

// Invalidate drops one file from every cache so the next pass reloads
// it. The watch controller calls this for each change event.
func (b *Bundler) Invalidate(path string) {
	path = pathutil.Normalize(path)
	name := b.assetNameFor(path)
	delete(b.modules, path)
	delete(b.sources, name)
	delete(b.sources, name+".map")
	delete(b.pathByName, name)
	delete(b.processed, path)
	delete(b.processed, name)
	for _, refName := range b.refsByPath[path] {
		delete(b.processed, refName)
	}
	delete(b.refsByPath, path)
}
