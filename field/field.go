// Package field provides dotted field paths into documents.
package field

import (
	"errors"
	"strings"
)

var (
	ErrEmptyPath      = errors.New("FieldPath cannot be constructed with empty string")
	ErrEmptyComponent = errors.New("FieldPath field names may not be empty strings")
	ErrDollarPrefix   = errors.New("FieldPath field names may not start with '$'")
)

// Path is a sequence of field names.  A nil or empty Path refers to the
// document itself.
type Path []string

func New(name string) Path {
	return Path{name}
}

// Dotted splits s on '.' without validating the components.
func Dotted(s string) Path {
	if s == "" {
		return nil
	}
	return strings.Split(s, ".")
}

// Parse splits s on '.' and rejects empty components and components that
// begin with '$'.
func Parse(s string) (Path, error) {
	if s == "" {
		return nil, ErrEmptyPath
	}
	p := strings.Split(s, ".")
	for _, name := range p {
		if name == "" {
			return nil, ErrEmptyComponent
		}
		if name[0] == '$' {
			return nil, ErrDollarPrefix
		}
	}
	return p, nil
}

func (p Path) String() string {
	if len(p) == 0 {
		return "$$ROOT"
	}
	return strings.Join(p, ".")
}

func (p Path) IsRoot() bool {
	return len(p) == 0
}

func (p Path) Leaf() string {
	return p[len(p)-1]
}

func (p Path) Head() string {
	return p[0]
}

func (p Path) Equal(to Path) bool {
	if len(p) != len(to) {
		return false
	}
	for k := range p {
		if p[k] != to[k] {
			return false
		}
	}
	return true
}

func (p Path) HasPrefix(prefix Path) bool {
	return len(p) >= len(prefix) && prefix.Equal(p[:len(prefix)])
}

func (p Path) HasStrictPrefix(prefix Path) bool {
	return len(p) > len(prefix) && prefix.Equal(p[:len(prefix)])
}

// Overlaps is true when one path is a prefix of the other, i.e., writing
// one may change what is read through the other.
func (p Path) Overlaps(q Path) bool {
	return p.HasPrefix(q) || q.HasPrefix(p)
}

func (p Path) Append(name string) Path {
	out := make(Path, 0, len(p)+1)
	return append(append(out, p...), name)
}

type List []Path

func (l List) String() string {
	names := make([]string, 0, len(l))
	for _, p := range l {
		names = append(names, p.String())
	}
	return strings.Join(names, ",")
}

func (l List) Has(in Path) bool {
	for _, p := range l {
		if p.Equal(in) {
			return true
		}
	}
	return false
}

// Overlaps is true if any path in l overlaps p.
func (l List) Overlaps(p Path) bool {
	for _, q := range l {
		if q.Overlaps(p) {
			return true
		}
	}
	return false
}

func (l List) Equal(to List) bool {
	if len(l) != len(to) {
		return false
	}
	for k, p := range l {
		if !p.Equal(to[k]) {
			return false
		}
	}
	return true
}
