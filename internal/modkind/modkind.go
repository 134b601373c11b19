package modkind

// A module's kind decides whether require() calls are dependency edges.
// Classification follows the nearest package manifest above the file.

import (
	"github.com/tidwall/gjson"

	"github.com/frida/frida-compile/internal/pathutil"
	"github.com/frida/frida-compile/internal/syskit"
)

type Kind uint8

const (
	CJS Kind = iota
	ESM
)

func (k Kind) String() string {
	if k == ESM {
		return "esm"
	}
	return "cjs"
}

// Detect walks from the file's parent directory toward the root and
// classifies from the first package.json found. A manifest with
// type == "module" or any "module" field means ESM; everything else,
// including the absence of a manifest, means CJS.
func Detect(sys syskit.System, file string) Kind {
	dir := pathutil.Dir(file)
	for {
		manifest := pathutil.Join(dir, "package.json")
		if contents, err := sys.ReadFile(manifest); err == nil {
			doc := gjson.Parse(contents)
			if doc.Get("type").String() == "module" || doc.Get("module").Exists() {
				return ESM
			}
			return CJS
		}
		parent := pathutil.Dir(dir)
		if parent == dir {
			return CJS
		}
		dir = parent
	}
}
