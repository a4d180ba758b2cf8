package order

import (
	"fmt"
	"strings"
)

// Which is the direction of a sort key.
type Which bool

const (
	Asc  = Which(false)
	Desc = Which(true)
)

func Parse(s string) (Which, error) {
	switch strings.ToLower(s) {
	case "asc", "1":
		return Asc, nil
	case "desc", "-1":
		return Desc, nil
	default:
		return false, fmt.Errorf("unknown order %q", s)
	}
}

func (w Which) String() string {
	if w == Desc {
		return "desc"
	}
	return "asc"
}

// Direction returns 1 for Asc and -1 for Desc, as written in a $sort spec.
func (w Which) Direction() int {
	if w == Desc {
		return -1
	}
	return 1
}
