package minifier

// The minifier is a collaborator invoked per JS asset. The contract
// mirrors what the bundler needs: code in, code (and optionally a map
// back to the pre-minified input) out.

import (
	"github.com/frida/frida-compile/internal/sourcemap"
)

// SourceMapOptions asks for an output map. Root is the directory of the
// asset's origin file with a trailing slash; the returned map's sources
// have that prefix stripped. Content, when known, is the asset's
// pre-existing map and the returned map is composed through it.
type SourceMapOptions struct {
	Root     string
	Filename string
	Content  *sourcemap.SourceMap
}

type Options struct {
	SourceMap *SourceMapOptions
}

type Result struct {
	Code string
	Map  *sourcemap.SourceMap
}

type Minifier interface {
	Minify(filename string, code string, opts Options) (Result, error)
}
