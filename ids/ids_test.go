package ids_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/harvest-engine/ids"
)

func TestGenerator_DeterministicAndScoped(t *testing.T) {
	a := ids.New("keyboards")
	b := ids.New("farm")

	assert.Equal(t, a.Next("po", 1), ids.New("keyboards").Next("po", 1))
	assert.NotEqual(t, a.Next("po", 1), a.Next("po", 2))
	assert.NotEqual(t, a.Next("po", 1), b.Next("po", 1))
	assert.NotEqual(t, a.Next("po", 1), a.Next("bill", 1))
	assert.True(t, strings.HasPrefix(a.Next("bill", 3), "bill-"))
}
