package ids

import (
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestULIDGenMonotonic(t *testing.T) {
	g := NewULIDGen()
	prev := ""
	for i := 0; i < 1000; i++ {
		id, err := g.New()
		require.NoError(t, err)
		_, err = ulid.ParseStrict(id)
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
	}
}
