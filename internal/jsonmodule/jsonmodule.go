package jsonmodule

// A JSON asset is turned into an ECMAScript module so the loader never
// needs a special JSON path: the document becomes the default export
// and every own key that is a legal binding name is re-exported.

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"
)

// Reserved words that cannot be used as a binding name in a module.
var reservedWords = map[string]bool{
	"await": true, "break": true, "case": true, "catch": true,
	"class": true, "const": true, "continue": true, "debugger": true,
	"default": true, "delete": true, "do": true, "else": true,
	"enum": true, "export": true, "extends": true, "false": true,
	"finally": true, "for": true, "function": true, "if": true,
	"implements": true, "import": true, "in": true, "instanceof": true,
	"interface": true, "let": true, "new": true, "null": true,
	"package": true, "private": true, "protected": true, "public": true,
	"return": true, "static": true, "super": true, "switch": true,
	"this": true, "throw": true, "true": true, "try": true,
	"typeof": true, "var": true, "void": true, "while": true,
	"with": true, "yield": true,
}

func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if r == '$' || r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

// IsExportableKey reports whether a JSON object key can become a named
// export binding.
func IsExportableKey(name string) bool {
	return isIdentifier(name) && !reservedWords[name]
}

// Synthesize turns a JSON document into ECMAScript module source. The
// document text is embedded verbatim, trimmed of surrounding
// whitespace.
func Synthesize(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if !gjson.Valid(trimmed) {
		return "", fmt.Errorf("invalid JSON document")
	}
	doc := gjson.Parse(trimmed)

	if doc.Type != gjson.JSON || !doc.IsObject() {
		return "export default " + trimmed + ";\n", nil
	}

	keys := make([]string, 0)
	own := make(map[string]bool)
	doc.ForEach(func(key gjson.Result, value gjson.Result) bool {
		name := key.String()
		if !own[name] {
			own[name] = true
			keys = append(keys, name)
		}
		return true
	})

	binding := "d"
	for i := 1; own[binding]; i++ {
		binding = "d" + strconv.Itoa(i)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "const %s = %s;\n", binding, trimmed)
	fmt.Fprintf(&b, "export default %s;\n", binding)
	for _, key := range keys {
		if IsExportableKey(key) {
			fmt.Fprintf(&b, "export const %s = %s.%s;\n", key, binding, key)
		}
	}
	return b.String(), nil
}
