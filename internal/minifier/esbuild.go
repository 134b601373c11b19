package minifier

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/frida/frida-compile/internal/sourcemap"
)

// ESBuild minifies with esbuild's transform API: ES2020 target, module
// scope for both compression and mangling, and the FRIDA_COMPILE define
// folded into dead-code removal.
type ESBuild struct{}

func NewESBuild() *ESBuild {
	return &ESBuild{}
}

func (*ESBuild) Minify(filename string, code string, opts Options) (Result, error) {
	transform := api.TransformOptions{
		Loader:            api.LoaderJS,
		Format:            api.FormatESModule,
		Target:            api.ES2020,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		Define:            map[string]string{"process.env.FRIDA_COMPILE": "true"},
		LogLevel:          api.LogLevelSilent,
		Sourcefile:        filename,
	}
	if opts.SourceMap != nil {
		transform.Sourcemap = api.SourceMapExternal
	}

	result := api.Transform(code, transform)
	if len(result.Errors) > 0 {
		texts := make([]string, len(result.Errors))
		for i, message := range result.Errors {
			texts[i] = message.Text
		}
		return Result{}, fmt.Errorf("minify %s: %s", filename, strings.Join(texts, "; "))
	}

	out := Result{Code: string(result.Code)}
	if opts.SourceMap != nil {
		m, err := sourcemap.Parse(string(result.Map))
		if err != nil {
			return Result{}, fmt.Errorf("minify %s: %w", filename, err)
		}
		if opts.SourceMap.Content != nil {
			m = sourcemap.Compose(m, opts.SourceMap.Content)
		}
		m.File = opts.SourceMap.Filename
		m.RebaseSources(opts.SourceMap.Root)
		out.Map = m
	}
	return out, nil
}

var _ Minifier = (*ESBuild)(nil)
