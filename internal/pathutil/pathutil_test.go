package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "/a/b", Normalize("/a//b/"))
	assert.Equal(t, "/a", Normalize("/a/b/.."))
	assert.Equal(t, "/a/b", Normalize("\\a\\b"))
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "/p/agent/greet.js", Join("/p/agent", "./greet.js"))
	assert.Equal(t, "/p/greet.js", Join("/p/agent", "../greet.js"))
}

func TestIsAbs(t *testing.T) {
	assert.True(t, IsAbs("/p/agent"))
	assert.True(t, IsAbs("C:\\p\\agent"))
	assert.False(t, IsAbs("./agent"))
	assert.False(t, IsAbs("buffer"))
}

func TestHasPrefix(t *testing.T) {
	assert.True(t, HasPrefix("/foo/bar/baz.js", "/foo/bar"))
	assert.True(t, HasPrefix("/foo/bar", "/foo/bar"))
	assert.False(t, HasPrefix("/foo/barbaz", "/foo/bar"))
}

func TestTrimPrefix(t *testing.T) {
	assert.Equal(t, "/agent/index.js", TrimPrefix("/p/agent/index.js", "/p"))
	assert.Equal(t, "/x/y.js", TrimPrefix("/x/y.js", "/p"))
	assert.Equal(t, "/", TrimPrefix("/p", "/p"))
}
