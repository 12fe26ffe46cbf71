package lthread

import (
	"sort"

	"github.com/usnistgov/hugeplane/core/hwinfo"
	"github.com/usnistgov/hugeplane/thread/lcore"
	"go.uber.org/zap"
)

// Thread roles.
const (
	RoleProducer   = "PRODUCER"
	RoleConsumer   = "CONSUMER"
	RoleAggregator = "AGGREGATOR"
)

// Allocator allocates lcores to roles.
// It is not thread-safe.
type Allocator struct {
	// Config contains per-role reservations and limits.
	// If empty, every request is satisfied from any available lcore.
	Config Config

	provider  hwinfo.Provider
	pinFirst  lcore.LCore
	allocated map[int]string
}

// NewAllocator creates an Allocator.
func NewAllocator(provider hwinfo.Provider) *Allocator {
	return &Allocator{
		Config:    Config{},
		provider:  provider,
		allocated: map[int]string{},
	}
}

// SetPinFirst enables sequential allocation: each request receives the lowest available lcore whose ID is
// at least first, so that the i-th allocated thread lands on first+i.
// Config and NUMA preference are ignored in this mode.
// Passing an invalid lcore disables sequential allocation.
func (la *Allocator) SetPinFirst(first lcore.LCore) {
	la.pinFirst = first
}

type lCorePredicate func(core hwinfo.CoreInfo) bool

func (la *Allocator) invert(pred lCorePredicate) lCorePredicate {
	return func(core hwinfo.CoreInfo) bool {
		return !pred(core)
	}
}

func (la *Allocator) lcIsAvailable() lCorePredicate {
	return func(core hwinfo.CoreInfo) bool {
		return la.allocated[core.ID] == ""
	}
}

func (la *Allocator) lcOnNuma(socket lcore.NumaSocket) lCorePredicate {
	return func(core hwinfo.CoreInfo) bool {
		return socket.IsAny() || core.NumaSocket == socket.ID()
	}
}

func (la *Allocator) lcInList(list []int) lCorePredicate {
	sorted := append([]int{}, list...)
	sort.Ints(sorted)

	return func(core hwinfo.CoreInfo) bool {
		i := sort.SearchInts(sorted, core.ID)
		return i < len(sorted) && sorted[i] == core.ID
	}
}

func (la *Allocator) lcAllocatedTo(role string) lCorePredicate {
	return func(core hwinfo.CoreInfo) bool {
		return la.allocated[core.ID] == role
	}
}

func (la *Allocator) lcAtLeast(first int) lCorePredicate {
	return func(core hwinfo.CoreInfo) bool {
		return core.ID >= first
	}
}

// Return subset of cores that match all predicates, sorted by ID.
func (la *Allocator) filter(predicates ...lCorePredicate) (filtered hwinfo.Cores) {
L:
	for _, core := range la.provider.Cores() {
		for _, pred := range predicates {
			if !pred(core) {
				continue L
			}
		}
		filtered = append(filtered, core)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].ID < filtered[j].ID })
	return filtered
}

func (la *Allocator) pick(role string, socket lcore.NumaSocket) lcore.LCore {
	// 0. Sequential allocation.
	if la.pinFirst.Valid() {
		return firstOf(la.filter(la.lcIsAvailable(), la.lcAtLeast(la.pinFirst.ID())))
	}

	// 1. When Config is empty, satisfy every request.
	if len(la.Config) == 0 {
		avails := la.filter(la.lcIsAvailable())
		if numaAvails := la.filter(la.lcIsAvailable(), la.lcOnNuma(socket)); len(numaAvails) > 0 {
			return firstOf(numaAvails)
		}
		return la.pickLeastOccupied(avails.ByNumaSocket())
	}

	// 2. Allocate on preferred NUMA socket.
	if !socket.IsAny() {
		if cores := la.pickCfgOnNuma(role, socket); len(cores) > 0 {
			return firstOf(cores)
		}
	}

	// 3. Allocate on any NUMA socket.
	byNuma := map[int]hwinfo.Cores{}
	for _, socketID := range la.provider.Cores().Sockets() {
		byNuma[socketID] = la.pickCfgOnNuma(role, lcore.NumaSocketFromID(socketID))
	}
	return la.pickLeastOccupied(byNuma)
}

func (la *Allocator) pickCfgOnNuma(role string, socket lcore.NumaSocket) hwinfo.Cores {
	avails := la.filter(la.lcIsAvailable(), la.lcOnNuma(socket))
	rc := la.Config[role]

	// 1. Allocate from role-specific list.
	if listed := la.filter(la.lcIsAvailable(), la.lcOnNuma(socket), la.lcInList(rc.CPUs)); len(listed) > 0 {
		return listed
	}
	if len(rc.CPUs) > 0 && len(rc.PerSocket) == 0 {
		return nil
	}

	// 2. Allocate within role-specific per-socket limit.
	// (1) Find lcores not listed by other roles.
	unreservedPred := []lCorePredicate{la.lcIsAvailable(), la.lcOnNuma(socket)}
	for otherRole, otherRc := range la.Config {
		if otherRole != role {
			unreservedPred = append(unreservedPred, la.invert(la.lcInList(otherRc.CPUs)))
		}
	}
	unreserved := la.filter(unreservedPred...)
	if len(avails) == 0 || len(unreserved) == 0 {
		return nil
	}

	// (2) Count lcores already allocated to this role, and allocate if within limit.
	limit, hasLimit := rc.limitOn(unreserved[0].NumaSocket)
	if !hasLimit {
		return nil
	}
	nAllocated := len(la.filter(la.lcOnNuma(lcore.NumaSocketFromID(unreserved[0].NumaSocket)), la.lcAllocatedTo(role)))
	if nAllocated < limit {
		return unreserved
	}
	return nil
}

func (la *Allocator) pickLeastOccupied(availsByNuma map[int]hwinfo.Cores) lcore.LCore {
	sockets := make([]int, 0, len(availsByNuma))
	for socket := range availsByNuma {
		sockets = append(sockets, socket)
	}
	sort.Ints(sockets)

	var candidate lcore.LCore
	candidateRem := 0
	for _, socket := range sockets {
		if numaAvails := availsByNuma[socket]; len(numaAvails) > candidateRem {
			candidate = firstOf(numaAvails)
			candidateRem = len(numaAvails)
		}
	}
	return candidate
}

func firstOf(cores hwinfo.Cores) lcore.LCore {
	if len(cores) == 0 {
		return lcore.LCore{}
	}
	return lcore.FromID(cores[0].ID)
}

// Alloc allocates an lcore for a role.
// Returns invalid lcore if none is available.
func (la *Allocator) Alloc(role string, socket lcore.NumaSocket) (lc lcore.LCore) {
	lc = la.pick(role, socket)
	if !lc.Valid() {
		logger.Warn("no lcore available", zap.String("role", role), socket.ZapField("socket"))
		return lc
	}

	la.allocated[lc.ID()] = role
	logger.Info("lcore allocated", zap.String("role", role), socket.ZapField("socket"), lc.ZapField("lc"))
	return lc
}

// Free deallocates an lcore.
func (la *Allocator) Free(lc lcore.LCore) {
	role := la.allocated[lc.ID()]
	if role == "" {
		panic("lcore double free")
	}
	logger.Info("lcore freed", lc.ZapField("lc"), zap.String("role", role))
	delete(la.allocated, lc.ID())
}

// Allocated returns allocated lcores of a role.
func (la *Allocator) Allocated(role string) (list lcore.LCores) {
	for _, core := range la.filter(la.lcAllocatedTo(role)) {
		list = append(list, lcore.FromID(core.ID))
	}
	return list
}

// Clear deletes all allocations.
func (la *Allocator) Clear() {
	for id := range la.allocated {
		la.Free(lcore.FromID(id))
	}
}

// DefaultAllocator is the default instance of Allocator.
var DefaultAllocator = NewAllocator(hwinfo.Default)
