package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIncomplete(t *testing.T) {
	assert.True(t, incomplete(`[{"$match": {`))
	assert.True(t, incomplete(`[{"$match": {"a": "]`))
	assert.False(t, incomplete(`[{"$match": {"a": "[{"}}]`))
	assert.False(t, incomplete(`[{"$limit": 1}]]`))
	assert.False(t, incomplete(`{"a": "\"{"}`))
}
