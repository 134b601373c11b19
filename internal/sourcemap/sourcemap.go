package sourcemap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// SourceMap is the decoded form of a version-3 source map document.
type SourceMap struct {
	Version        int       `json:"version"`
	File           string    `json:"file,omitempty"`
	SourceRoot     string    `json:"sourceRoot,omitempty"`
	Sources        []string  `json:"sources"`
	SourcesContent []*string `json:"sourcesContent,omitempty"`
	Names          []string  `json:"names"`
	Mappings       string    `json:"mappings"`
}

func Parse(text string) (*SourceMap, error) {
	var m SourceMap
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		return nil, fmt.Errorf("invalid source map: %w", err)
	}
	if m.Sources == nil {
		m.Sources = []string{}
	}
	if m.Names == nil {
		m.Names = []string{}
	}
	return &m, nil
}

// String serializes the map back to JSON. Field order is fixed by the
// struct so repeated serialization is byte-stable.
func (m *SourceMap) String() string {
	data, err := json.Marshal(m)
	if err != nil {
		// All fields are plain strings and slices; this cannot happen.
		panic(err)
	}
	return string(data)
}

const mappingURLPrefix = "//# sourceMappingURL="

// TrimMappingURL removes a trailing sourceMappingURL comment. The
// comment only counts when it begins the last line of the file.
func TrimMappingURL(code string) (trimmed string, url string, found bool) {
	rest := strings.TrimRight(code, "\n")
	idx := strings.LastIndexByte(rest, '\n')
	last := rest[idx+1:]
	if !strings.HasPrefix(last, mappingURLPrefix) {
		return code, "", false
	}
	url = strings.TrimSpace(last[len(mappingURLPrefix):])
	if idx < 0 {
		return "", url, true
	}
	return rest[:idx+1], url, true
}

const dataURLPrefix = "data:application/json;base64,"

// IsDataURL reports whether a sourceMappingURL value carries the map
// inline as a base64 data URL.
func IsDataURL(url string) bool {
	return strings.HasPrefix(url, dataURLPrefix)
}

// DataURLPayload returns the base64 payload of an inline map URL.
func DataURLPayload(url string) string {
	return url[len(dataURLPrefix):]
}

// RebaseSources strips a common prefix from every sources entry, making
// the paths relative to the stripped root. Any sourceRoot is folded in
// first and then cleared, since the entries no longer need it.
func (m *SourceMap) RebaseSources(prefix string) {
	for i, source := range m.Sources {
		full := source
		if m.SourceRoot != "" {
			full = m.SourceRoot + source
		}
		m.Sources[i] = strings.TrimPrefix(full, prefix)
	}
	m.SourceRoot = ""
}

// Mapping is one decoded segment of the mappings string. All positions
// are 0-based; NameIndex and the original position are -1 when absent.
type Mapping struct {
	GeneratedLine   int
	GeneratedColumn int
	SourceIndex     int
	OriginalLine    int
	OriginalColumn  int
	NameIndex       int
}

var base64Digits = []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/")

// A single base 64 digit can contain 6 bits of data. For the base 64
// variable length quantities used in the source map spec, the first bit
// is the sign, the next four bits are the actual value, and the 6th bit
// is the continuation bit.
func EncodeVLQ(encoded []byte, value int) []byte {
	var vlq int
	if value < 0 {
		vlq = ((-value) << 1) | 1
	} else {
		vlq = value << 1
	}
	for {
		digit := vlq & 31
		vlq >>= 5
		if vlq != 0 {
			digit |= 32
		}
		encoded = append(encoded, base64Digits[digit])
		if vlq == 0 {
			break
		}
	}
	return encoded
}

func DecodeVLQ(encoded []byte, start int) (int, int) {
	shift := 0
	vlq := 0
	for start < len(encoded) {
		index := bytes.IndexByte(base64Digits, encoded[start])
		if index < 0 {
			break
		}
		vlq |= (index & 31) << shift
		start++
		shift += 5
		if (index & 32) == 0 {
			break
		}
	}
	value := vlq >> 1
	if (vlq & 1) != 0 {
		value = -value
	}
	return value, start
}

// DecodeMappings expands a mappings string into absolute segments, in
// generated order.
func DecodeMappings(mappings string) []Mapping {
	encoded := []byte(mappings)
	var result []Mapping
	generatedLine := 0
	generatedColumn := 0
	sourceIndex := 0
	originalLine := 0
	originalColumn := 0
	nameIndex := 0
	pos := 0

	for pos < len(encoded) {
		switch encoded[pos] {
		case ';':
			generatedLine++
			generatedColumn = 0
			pos++
			continue
		case ',':
			pos++
			continue
		}

		var delta int
		delta, pos = DecodeVLQ(encoded, pos)
		generatedColumn += delta
		mapping := Mapping{
			GeneratedLine:   generatedLine,
			GeneratedColumn: generatedColumn,
			SourceIndex:     -1,
			OriginalLine:    -1,
			OriginalColumn:  -1,
			NameIndex:       -1,
		}

		if pos < len(encoded) && encoded[pos] != ',' && encoded[pos] != ';' {
			delta, pos = DecodeVLQ(encoded, pos)
			sourceIndex += delta
			delta, pos = DecodeVLQ(encoded, pos)
			originalLine += delta
			delta, pos = DecodeVLQ(encoded, pos)
			originalColumn += delta
			mapping.SourceIndex = sourceIndex
			mapping.OriginalLine = originalLine
			mapping.OriginalColumn = originalColumn

			if pos < len(encoded) && encoded[pos] != ',' && encoded[pos] != ';' {
				delta, pos = DecodeVLQ(encoded, pos)
				nameIndex += delta
				mapping.NameIndex = nameIndex
			}
		}

		result = append(result, mapping)
	}
	return result
}

// EncodeMappings serializes absolute segments back into a mappings
// string. Segments must be in generated order.
func EncodeMappings(mappings []Mapping) string {
	var encoded []byte
	generatedLine := 0
	generatedColumn := 0
	sourceIndex := 0
	originalLine := 0
	originalColumn := 0
	nameIndex := 0

	for _, mapping := range mappings {
		for generatedLine < mapping.GeneratedLine {
			encoded = append(encoded, ';')
			generatedLine++
			generatedColumn = 0
		}
		if len(encoded) > 0 && encoded[len(encoded)-1] != ';' {
			encoded = append(encoded, ',')
		}
		encoded = EncodeVLQ(encoded, mapping.GeneratedColumn-generatedColumn)
		generatedColumn = mapping.GeneratedColumn

		if mapping.SourceIndex >= 0 {
			encoded = EncodeVLQ(encoded, mapping.SourceIndex-sourceIndex)
			sourceIndex = mapping.SourceIndex
			encoded = EncodeVLQ(encoded, mapping.OriginalLine-originalLine)
			originalLine = mapping.OriginalLine
			encoded = EncodeVLQ(encoded, mapping.OriginalColumn-originalColumn)
			originalColumn = mapping.OriginalColumn
			if mapping.NameIndex >= 0 {
				encoded = EncodeVLQ(encoded, mapping.NameIndex-nameIndex)
				nameIndex = mapping.NameIndex
			}
		}
	}
	return string(encoded)
}

// Find returns the segment covering a generated position, or nil. The
// segment list must be in generated order.
func Find(mappings []Mapping, line int, column int) *Mapping {
	count := len(mappings)
	index := 0
	for count > 0 {
		step := count / 2
		i := index + step
		m := mappings[i]
		if m.GeneratedLine < line || (m.GeneratedLine == line && m.GeneratedColumn <= column) {
			index = i + 1
			count -= step + 1
		} else {
			count = step
		}
	}
	if index > 0 {
		m := &mappings[index-1]
		if m.GeneratedLine == line {
			return m
		}
	}
	return nil
}

// Compose chains two maps: outer maps the final output back to an
// intermediate file, inner maps that intermediate file back to the
// original sources. The result maps the final output straight to the
// originals. Outer segments that land outside inner's coverage are
// dropped.
func Compose(outer *SourceMap, inner *SourceMap) *SourceMap {
	outerSegments := DecodeMappings(outer.Mappings)
	innerSegments := DecodeMappings(inner.Mappings)

	var merged []Mapping
	for _, segment := range outerSegments {
		if segment.SourceIndex < 0 {
			continue
		}
		hit := Find(innerSegments, segment.OriginalLine, segment.OriginalColumn)
		if hit == nil || hit.SourceIndex < 0 {
			continue
		}
		name := -1
		if hit.NameIndex >= 0 {
			name = hit.NameIndex
		}
		merged = append(merged, Mapping{
			GeneratedLine:   segment.GeneratedLine,
			GeneratedColumn: segment.GeneratedColumn,
			SourceIndex:     hit.SourceIndex,
			OriginalLine:    hit.OriginalLine,
			OriginalColumn:  hit.OriginalColumn,
			NameIndex:       name,
		})
	}

	return &SourceMap{
		Version:        3,
		File:           outer.File,
		SourceRoot:     inner.SourceRoot,
		Sources:        append([]string(nil), inner.Sources...),
		SourcesContent: append([]*string(nil), inner.SourcesContent...),
		Names:          append([]string(nil), inner.Names...),
		Mappings:       EncodeMappings(merged),
	}
}
