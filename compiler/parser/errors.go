package parser

import (
	"fmt"
	"strings"
)

// SyntaxError is a JSON syntax error in pipeline source, located by file,
// line and column.
type SyntaxError struct {
	Filename string
	// Text is the offending source line without its newline.
	Text   string
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	where := fmt.Sprintf("line %d, column %d", e.Line, e.Column)
	if e.Filename != "" {
		where = e.Filename + ": " + where
	}
	caret := strings.Repeat(" ", max(e.Column-1, 0)) + "^"
	return fmt.Sprintf("%s (%s):\n%s\n%s", e.Msg, where, e.Text, caret)
}
