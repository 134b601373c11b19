package scanner

// The scanner walks a parsed source and extracts every dependency
// reference: static imports, static re-exports, and — for CommonJS
// modules only — require("…") call sites at any nesting depth.

import (
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"

	"github.com/frida/frida-compile/internal/modkind"
	"github.com/frida/frida-compile/internal/pathutil"
)

// Parse parses JavaScript module source into an AST.
func Parse(code string) (*js.AST, error) {
	return js.Parse(parse.NewInputString(code), js.Options{})
}

// Refs holds the normalized references found in one module, in
// discovery order with duplicates removed. References ending in .json
// are split out for deferred loading.
type Refs struct {
	Modules []string
	JSON    []string
}

type collector struct {
	kind modkind.Kind
	dir  string
	seen map[string]bool
	refs *Refs
}

func (c *collector) add(name string) {
	if name == "" {
		return
	}
	// Relative references are pinned to the owning module's directory.
	if strings.HasPrefix(name, ".") {
		name = pathutil.Join(c.dir, name)
	}
	if c.seen[name] {
		return
	}
	c.seen[name] = true
	if strings.HasSuffix(name, ".json") {
		c.refs.JSON = append(c.refs.JSON, name)
	} else {
		c.refs.Modules = append(c.refs.Modules, name)
	}
}

func (c *collector) Enter(n js.INode) js.IVisitor {
	switch node := n.(type) {
	case *js.ImportStmt:
		c.add(unquote(node.Module))
	case *js.ExportStmt:
		if len(node.Module) != 0 {
			c.add(unquote(node.Module))
		}
	case *js.CallExpr:
		if c.kind == modkind.CJS {
			if name, ok := requireArgument(node); ok {
				c.add(name)
			}
		}
	}
	return c
}

func (c *collector) Exit(n js.INode) {}

// Collect extracts the references of one module. dir is the module's
// directory, used to absolutize relative references.
func Collect(ast *js.AST, kind modkind.Kind, dir string) Refs {
	refs := Refs{}
	visitor := &collector{kind: kind, dir: dir, seen: make(map[string]bool), refs: &refs}
	js.Walk(visitor, ast)
	return refs
}

// requireArgument matches require("…") exactly: the callee is the bare
// identifier require and the single argument is a string literal.
func requireArgument(call *js.CallExpr) (string, bool) {
	callee, ok := call.X.(*js.Var)
	if !ok || string(callee.Data) != "require" {
		return "", false
	}
	if len(call.Args.List) != 1 || call.Args.List[0].Rest {
		return "", false
	}
	lit, ok := call.Args.List[0].Value.(*js.LiteralExpr)
	if !ok || lit.TokenType != js.StringToken {
		return "", false
	}
	return unquote(lit.Data), true
}

// unquote strips the surrounding quotes from a string token and decodes
// the escape sequences that can appear in a module specifier.
func unquote(data []byte) string {
	if len(data) < 2 {
		return string(data)
	}
	quote := data[0]
	if quote != '"' && quote != '\'' && quote != '`' {
		return string(data)
	}
	inner := data[1 : len(data)-1]
	if !strings.Contains(string(inner), "\\") {
		return string(inner)
	}
	var b strings.Builder
	for i := 0; i < len(inner); i++ {
		ch := inner[i]
		if ch != '\\' || i+1 >= len(inner) {
			b.WriteByte(ch)
			continue
		}
		i++
		switch inner[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		default:
			b.WriteByte(inner[i])
		}
	}
	return b.String()
}
