package pathutil

// Every key inside the bundler is a POSIX-form path. Native paths only
// appear at the edges, when talking to the real file system.

import (
	"path"
	"path/filepath"
	"strings"
)

// ToPosix converts a native path to POSIX form. Windows drive letters are
// kept as a leading component ("C:/...") so the result is still unique.
func ToPosix(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// FromPosix converts a POSIX-form path back to the native separator.
func FromPosix(p string) string {
	if filepath.Separator == '/' {
		return p
	}
	return strings.ReplaceAll(p, "/", string(filepath.Separator))
}

// Normalize cleans a POSIX-form path, collapsing "." and ".." segments.
func Normalize(p string) string {
	return path.Clean(ToPosix(p))
}

func Join(parts ...string) string {
	for i, part := range parts {
		parts[i] = ToPosix(part)
	}
	return path.Join(parts...)
}

func Dir(p string) string {
	return path.Dir(ToPosix(p))
}

func Base(p string) string {
	return path.Base(ToPosix(p))
}

func Ext(p string) string {
	return path.Ext(p)
}

// IsAbs reports whether a POSIX-form path is absolute. A path with a
// drive-letter prefix counts as absolute too.
func IsAbs(p string) bool {
	p = ToPosix(p)
	if strings.HasPrefix(p, "/") {
		return true
	}
	return len(p) >= 3 && p[1] == ':' && p[2] == '/'
}

// HasPrefix reports whether p lies inside dir (or equals it), comparing
// whole path segments so "/foo/barbaz" is not inside "/foo/bar".
func HasPrefix(p string, dir string) bool {
	p = Normalize(p)
	dir = Normalize(dir)
	if p == dir {
		return true
	}
	if dir == "/" {
		return strings.HasPrefix(p, "/")
	}
	return strings.HasPrefix(p, dir+"/")
}

// TrimPrefix removes the dir prefix from p, leaving a leading slash.
// Returns p unchanged when p does not lie inside dir.
func TrimPrefix(p string, dir string) string {
	p = Normalize(p)
	dir = Normalize(dir)
	if p == dir {
		return "/"
	}
	if dir != "/" && strings.HasPrefix(p, dir+"/") {
		return p[len(dir):]
	}
	return p
}
