package cacheline_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/usnistgov/hugeplane/core/cacheline"
)

func TestSlice(t *testing.T) {
	for _, n := range []int{1, 3, 17, 1000} {
		s := cacheline.Slice[uint32](n)
		assert.Len(t, s, n)
		assert.True(t, cacheline.IsAligned(unsafe.Pointer(&s[0])))
		for i := range s {
			assert.Zero(t, s[i])
			s[i] = uint32(i)
		}
	}
	assert.Nil(t, cacheline.Slice[uint64](0))
}
