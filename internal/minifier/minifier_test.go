package minifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frida/frida-compile/internal/sourcemap"
)

func TestMinifyShrinksAndMangles(t *testing.T) {
	min := NewESBuild()

	code := "export function greet(name) {\n  const message = \"Hello, \" + name;\n  return message;\n}\n"
	result, err := min.Minify("/p/agent/greet.js", code, Options{})
	require.NoError(t, err)
	assert.Less(t, len(result.Code), len(code))
	assert.NotContains(t, result.Code, "\n  ")
	assert.Contains(t, result.Code, "greet")
	assert.Nil(t, result.Map)
}

func TestMinifyFoldsCompileDefine(t *testing.T) {
	min := NewESBuild()

	code := "if (process.env.FRIDA_COMPILE) { keep(); } else { drop(); }\n"
	result, err := min.Minify("/p/a.js", code, Options{})
	require.NoError(t, err)
	assert.Contains(t, result.Code, "keep")
	assert.NotContains(t, result.Code, "drop")
}

func TestMinifyProducesRebasedMap(t *testing.T) {
	min := NewESBuild()

	result, err := min.Minify("/p/agent/index.js", "export const answer = 42;\n", Options{
		SourceMap: &SourceMapOptions{
			Root:     "/p/agent/",
			Filename: "index.js",
		},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Map)
	assert.Equal(t, "index.js", result.Map.File)
	for _, source := range result.Map.Sources {
		assert.False(t, strings.HasPrefix(source, "/p/"), source)
	}
}

func TestMinifyComposesInputMap(t *testing.T) {
	min := NewESBuild()

	inner := &sourcemap.SourceMap{
		Version: 3,
		Sources: []string{"index.ts"},
		Names:   []string{},
		Mappings: sourcemap.EncodeMappings([]sourcemap.Mapping{
			{GeneratedLine: 0, GeneratedColumn: 0, SourceIndex: 0, OriginalLine: 7, OriginalColumn: 0, NameIndex: -1},
		}),
	}
	result, err := min.Minify("/p/agent/index.js", "export const answer = 42;\n", Options{
		SourceMap: &SourceMapOptions{
			Root:     "/p/agent/",
			Filename: "index.js",
			Content:  inner,
		},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Map)
	assert.Equal(t, []string{"index.ts"}, result.Map.Sources)

	segments := sourcemap.DecodeMappings(result.Map.Mappings)
	require.NotEmpty(t, segments)
	assert.Equal(t, 7, segments[0].OriginalLine)
}

func TestMinifyReportsSyntaxErrors(t *testing.T) {
	min := NewESBuild()

	_, err := min.Minify("/p/broken.js", "function {", Options{})
	assert.Error(t, err)
}
