package httpmiddleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimpleTokenBucket_ExhaustsCapacity(t *testing.T) {
	l := NewSimpleTokenBucket(3, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("10.0.0.1"), "request %d within capacity", i)
	}
	assert.False(t, l.allow("10.0.0.1"), "capacity exhausted")

	// Other clients keep their own budget.
	assert.True(t, l.allow("10.0.0.2"))
}
