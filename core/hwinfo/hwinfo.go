// Package hwinfo lists the CPUs this process may run on.
package hwinfo

import (
	"sort"

	"github.com/usnistgov/hugeplane/core/logging"
)

var logger = logging.New("hwinfo")

// CoreInfo describes a logical CPU.
type CoreInfo struct {
	ID         int `json:"id"`
	NumaSocket int `json:"numaSocket"`
	Package    int `json:"package"`
	Core       int `json:"core"` // physical core ID within Package
}

// Cores is a list of logical CPUs.
type Cores []CoreInfo

// IDs returns sorted logical CPU IDs.
func (cores Cores) IDs() (list []int) {
	list = make([]int, 0, len(cores))
	for _, c := range cores {
		list = append(list, c.ID)
	}
	sort.Ints(list)
	return list
}

// ByNumaSocket groups CPUs by NUMA socket.
func (cores Cores) ByNumaSocket() map[int]Cores {
	m := map[int]Cores{}
	for _, c := range cores {
		m[c.NumaSocket] = append(m[c.NumaSocket], c)
	}
	return m
}

// Sockets returns sorted NUMA socket IDs.
func (cores Cores) Sockets() (list []int) {
	for socket := range cores.ByNumaSocket() {
		list = append(list, socket)
	}
	sort.Ints(list)
	return list
}

// Provider provides the CPU list.
type Provider interface {
	Cores() Cores
}

// Fixed is a Provider that returns a fixed list.
type Fixed Cores

// Cores implements Provider interface.
func (f Fixed) Cores() Cores {
	return Cores(f)
}

// Default reads /proc and /sys on first use.
var Default Provider = &sysProvider{}
