package hwinfo

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	procinfo "github.com/c9s/goprocinfo/linux"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	pathCPUInfo = "/proc/cpuinfo"
	globCPUNode = "/sys/devices/system/cpu/cpu%d/node*"
)

type sysProvider struct {
	once  sync.Once
	cores Cores
}

func (p *sysProvider) Cores() Cores {
	p.once.Do(func() { p.cores = readCores() })
	return p.cores
}

func readCores() (cores Cores) {
	var allowed unix.CPUSet
	if e := unix.SchedGetaffinity(0, &allowed); e != nil {
		logger.Panic("sched_getaffinity", zap.Error(e))
	}

	info, e := procinfo.ReadCPUInfo(pathCPUInfo)
	if e != nil {
		logger.Panic(pathCPUInfo, zap.Error(e))
	}

	for _, proc := range info.Processors {
		id := int(proc.Id)
		if !allowed.IsSet(id) {
			continue
		}
		cores = append(cores, CoreInfo{
			ID:         id,
			NumaSocket: numaNodeOf(id),
			Package:    int(proc.PhysicalId),
			Core:       int(proc.CoreId),
		})
	}

	logger.Debug("CPUs detected", zap.Ints("ids", cores.IDs()), zap.Ints("sockets", cores.Sockets()))
	return cores
}

// numaNodeOf returns 0 when sysfs has no NUMA node links, as in some containers.
func numaNodeOf(cpu int) int {
	matches, _ := filepath.Glob(fmt.Sprintf(globCPUNode, cpu))
	for _, m := range matches {
		if node, e := strconv.Atoi(strings.TrimPrefix(filepath.Base(m), "node")); e == nil {
			return node
		}
	}
	return 0
}
