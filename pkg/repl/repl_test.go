package repl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWordCompleter(t *testing.T) {
	complete := wordCompleter([]string{"$match", "$merge", "$limit"})
	head, completions, tail := complete(`[{"$m`, 5)
	assert.Equal(t, `[{"`, head)
	assert.Equal(t, []string{"$match", "$merge"}, completions)
	assert.Equal(t, "", tail)

	_, completions, _ = complete(`[{`, 2)
	assert.Empty(t, completions)
}
