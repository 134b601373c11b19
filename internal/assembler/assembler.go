package assembler

// The bundle is a fixed text envelope: a manifest naming every asset
// and its byte length, then the payloads. The sentinel characters are
// load-bearing for the loader and must survive byte-for-byte.

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

const (
	headerSentinel    = "\U0001F4E6" // U+1F4E6 package
	aliasSentinel     = "↻"          // U+21BB clockwise open circle arrow
	separatorSentinel = "✄"          // U+2704 white scissors
)

// Order produces the emission order for a set of asset names: each
// primary is preceded by its map, primaries are lexicographic, and the
// entrypoint's pair leads the bundle.
func Order(names []string, entryName string) []string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	exists := make(map[string]bool, len(sorted))
	for _, name := range sorted {
		exists[name] = true
	}

	var head []string
	var tail []string
	for _, name := range sorted {
		if strings.HasSuffix(name, ".map") {
			continue
		}
		pair := make([]string, 0, 2)
		if exists[name+".map"] {
			pair = append(pair, name+".map")
		}
		pair = append(pair, name)
		if name == entryName {
			head = pair
		} else {
			tail = append(tail, pair...)
		}
	}
	return append(head, tail...)
}

// Assemble serializes the container. aliases maps asset names to the
// canonical reference strings of the module stored there.
func Assemble(assets map[string]string, aliases map[string][]string, entryName string) []byte {
	names := make([]string, 0, len(assets))
	for name := range assets {
		names = append(names, name)
	}
	ordered := Order(names, entryName)

	var buf bytes.Buffer
	buf.WriteString(headerSentinel)
	buf.WriteByte('\n')
	for _, name := range ordered {
		fmt.Fprintf(&buf, "%d %s\n", len(assets[name]), name)
		moduleAliases := append([]string(nil), aliases[name]...)
		sort.Strings(moduleAliases)
		for _, alias := range moduleAliases {
			fmt.Fprintf(&buf, "%s %s\n", aliasSentinel, alias)
		}
	}
	buf.WriteString(separatorSentinel)
	buf.WriteByte('\n')

	for i, name := range ordered {
		if i > 0 {
			buf.WriteByte('\n')
			buf.WriteString(separatorSentinel)
			buf.WriteByte('\n')
		}
		buf.WriteString(assets[name])
	}
	return buf.Bytes()
}
