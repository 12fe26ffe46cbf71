package hwinfo_test

import (
	"testing"

	"github.com/usnistgov/hugeplane/core/hwinfo"
	"github.com/usnistgov/hugeplane/core/testenv"
)

var makeAR = testenv.MakeAR

func TestDefault(t *testing.T) {
	assert, _ := makeAR(t)

	cores := hwinfo.Default.Cores()
	assert.NotEmpty(cores)
	assert.NotEmpty(cores.Sockets())
	assert.Len(cores.IDs(), len(cores))
	assert.IsNonDecreasing(cores.IDs())
}

func TestFixed(t *testing.T) {
	assert, _ := makeAR(t)

	var p hwinfo.Provider = hwinfo.Fixed{
		{ID: 0, NumaSocket: 0},
		{ID: 1, NumaSocket: 0, Core: 1},
		{ID: 4, NumaSocket: 1, Package: 1},
		{ID: 2, NumaSocket: 0},
		{ID: 3, NumaSocket: 0, Core: 1},
	}
	cores := p.Cores()
	assert.Equal([]int{0, 1, 2, 3, 4}, cores.IDs())
	assert.Equal([]int{0, 1}, cores.Sockets())

	byNuma := cores.ByNumaSocket()
	assert.Len(byNuma[0], 4)
	assert.Len(byNuma[1], 1)
	assert.Equal(4, byNuma[1][0].ID)
}
