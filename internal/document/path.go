// Package document addresses values inside nested, JSON-shaped brand
// documents using dot-separated field paths.
package document

import (
	"strings"

	"github.com/rotisserie/eris"
)

// ErrInvalidPath is returned for malformed field paths or paths that cannot
// be applied to the document's shape.
var ErrInvalidPath = eris.New("invalid field path")

// Path is a parsed field path. Segments are object keys or, when the parent
// is an array, decimal indices.
type Path []string

// ParsePath parses a dot-separated path. A literal dot inside a key is
// written as `\.` and a literal backslash as `\\`.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return nil, eris.Wrap(ErrInvalidPath, "empty path")
	}

	var (
		segs []string
		cur  strings.Builder
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			if i+1 >= len(s) || (s[i+1] != '.' && s[i+1] != '\\') {
				return nil, eris.Wrapf(ErrInvalidPath, "bad escape in %q", s)
			}
			cur.WriteByte(s[i+1])
			i++
		case '.':
			if cur.Len() == 0 {
				return nil, eris.Wrapf(ErrInvalidPath, "empty segment in %q", s)
			}
			segs = append(segs, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() == 0 {
		return nil, eris.Wrapf(ErrInvalidPath, "empty segment in %q", s)
	}
	return append(segs, cur.String()), nil
}

// MustParsePath is ParsePath for literals known to be valid.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String renders the path back to its escaped dot form.
func (p Path) String() string {
	escaped := make([]string, len(p))
	for i, seg := range p {
		seg = strings.ReplaceAll(seg, `\`, `\\`)
		escaped[i] = strings.ReplaceAll(seg, ".", `\.`)
	}
	return strings.Join(escaped, ".")
}

// Child returns a new path with key appended. The receiver is not modified.
func (p Path) Child(key string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, key)
}

// Parent returns the path without its last segment.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	return p[:len(p)-1]
}

// Section returns the top-level key of the path.
func (p Path) Section() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

// HasPrefix reports whether q is p or an ancestor of p.
func (p Path) HasPrefix(q Path) bool {
	if len(q) > len(p) {
		return false
	}
	for i := range q {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}
