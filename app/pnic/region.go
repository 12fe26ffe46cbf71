// Package pnic places channel rings in shared memory regions, so that producers and consumers may live in
// different processes.
//
// Each region holds one ring and its frames, behind a fixed little-endian header:
//
//	offset size field
//	     0    4 magic       0x504e4943 "PNIC"
//	     4    2 version     1
//	     6    2 reserved
//	     8    4 ring_size   power of two
//	    12    4 ring_mask   ring_size-1
//	    16    4 dpf         descriptors per frame
//	    20    4 align       descriptor alignment
//	    24    8 slots_off   offset of uint32[ring_size]
//	    32    8 frames_off  offset of descriptor array
//	    40    4 head        consumer index
//	    44    4 tail        producer index
//	    48   64 pad
//
// Slot and descriptor arrays are accessed in host byte order, so a region may only be shared within one host.
// Processes sharing regions must agree on the HugeBlob out of band.
package pnic

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/usnistgov/hugeplane/app/channel"
	"github.com/usnistgov/hugeplane/container/spscring"
	"github.com/usnistgov/hugeplane/core/cacheline"
	"github.com/usnistgov/hugeplane/core/logging"
	"github.com/usnistgov/hugeplane/mem/frame"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

var logger = logging.New("pnic")

// Header constants.
const (
	Magic      = 0x504e4943
	Version    = 1
	HeaderSize = 112
)

const (
	offMagic     = 0
	offVersion   = 4
	offRingSize  = 8
	offRingMask  = 12
	offDpf       = 16
	offAlign     = 20
	offSlotsOff  = 24
	offFramesOff = 32
	offHead      = 40
	offTail      = 44
)

// ErrHeader indicates a region header is invalid.
var ErrHeader = errors.New("bad pNIC region header")

// Layout describes where arrays are placed in a region.
type Layout struct {
	RingSize  int
	Dpf       int
	Align     int
	SlotsOff  uint64
	FramesOff uint64
}

// MakeLayout computes the layout used by Create.
// Arrays are placed on cache line boundaries after the header.
func MakeLayout(ringSize, dpf, align int) (lo Layout) {
	lo.RingSize, lo.Dpf, lo.Align = ringSize, dpf, align
	lo.SlotsOff = alignUp(HeaderSize, cacheline.Size)
	lo.FramesOff = alignUp(lo.SlotsOff+4*uint64(ringSize), cacheline.Size)
	return lo
}

// SlotsEnd returns the exclusive end of the slot array.
func (lo Layout) SlotsEnd() uint64 {
	return lo.SlotsOff + 4*uint64(lo.RingSize)
}

// FramesEnd returns the exclusive end of the descriptor array.
func (lo Layout) FramesEnd() uint64 {
	return lo.FramesOff + frame.DescriptorSize*uint64(lo.RingSize)*uint64(lo.Dpf)
}

// Size returns the minimum region size.
func (lo Layout) Size() uint64 {
	return max(lo.SlotsEnd(), lo.FramesEnd())
}

func alignUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}

func isPowerOfTwo(n uint32) bool {
	return n != 0 && n&(n-1) == 0
}

// readHeader parses and validates a region header against region size.
func readHeader(mem []byte) (lo Layout, e error) {
	if len(mem) < HeaderSize {
		return lo, fmt.Errorf("%w: region size %d is shorter than header", ErrHeader, len(mem))
	}
	le := binary.LittleEndian
	if magic := le.Uint32(mem[offMagic:]); magic != Magic {
		return lo, fmt.Errorf("%w: magic %08x", ErrHeader, magic)
	}
	if version := le.Uint16(mem[offVersion:]); version != Version {
		return lo, fmt.Errorf("%w: version %d", ErrHeader, version)
	}

	ringSize, ringMask := le.Uint32(mem[offRingSize:]), le.Uint32(mem[offRingMask:])
	dpf, align := le.Uint32(mem[offDpf:]), le.Uint32(mem[offAlign:])
	lo = Layout{
		RingSize:  int(ringSize),
		Dpf:       int(dpf),
		Align:     int(align),
		SlotsOff:  le.Uint64(mem[offSlotsOff:]),
		FramesOff: le.Uint64(mem[offFramesOff:]),
	}

	errs := []error{}
	if !isPowerOfTwo(ringSize) || ringSize < 1<<channel.MinRingPow2 || ringSize > 1<<channel.MaxRingPow2 {
		errs = append(errs, fmt.Errorf("ring_size %d", ringSize))
	}
	if ringMask != ringSize-1 {
		errs = append(errs, fmt.Errorf("ring_mask %d", ringMask))
	}
	if dpf < frame.MinDpf || dpf > frame.MaxDpf {
		errs = append(errs, fmt.Errorf("dpf %d", dpf))
	}
	if !isPowerOfTwo(align) || align > channel.MaxAlign {
		errs = append(errs, fmt.Errorf("align %d", align))
	}
	if len(errs) > 0 {
		return lo, fmt.Errorf("%w: %w", ErrHeader, multierr.Combine(errs...))
	}

	size := uint64(len(mem))
	switch {
	case lo.SlotsOff < HeaderSize, lo.SlotsOff%4 != 0, lo.SlotsEnd() > size:
		e = fmt.Errorf("slots_off %d", lo.SlotsOff)
	case lo.FramesOff < HeaderSize, lo.FramesOff%8 != 0, lo.FramesEnd() > size:
		e = fmt.Errorf("frames_off %d", lo.FramesOff)
	case lo.SlotsOff < lo.FramesEnd() && lo.FramesOff < lo.SlotsEnd():
		e = errors.New("slots and frames overlap")
	default:
		return lo, nil
	}
	return lo, fmt.Errorf("%w: %w", ErrHeader, e)
}

// Region is a mapped pNIC region.
type Region struct {
	mem  []byte
	file *os.File
	path string
	lo   Layout
	lane *channel.Lane
}

// Create creates or overwrites a region file sized for the geometry in cfg.
// Only RingPow2, Dpf, and Align are used; zero values are replaced with defaults.
func Create(path string, cfg channel.Config) (r *Region, e error) {
	cfg.ApplyDefaults()
	if e := cfg.Validate(); e != nil {
		return nil, e
	}
	lo := MakeLayout(cfg.RingSize(), cfg.Dpf, cfg.Align)

	file, e := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if e != nil {
		return nil, e
	}
	if e = file.Truncate(int64(lo.Size())); e != nil {
		return nil, multierr.Append(fmt.Errorf("ftruncate: %w", e), file.Close())
	}
	r, e = mapRegion(file, path, int(lo.Size()))
	if e != nil {
		return nil, e
	}

	le := binary.LittleEndian
	le.PutUint16(r.mem[offVersion:], Version)
	le.PutUint32(r.mem[offRingSize:], uint32(lo.RingSize))
	le.PutUint32(r.mem[offRingMask:], uint32(lo.RingSize-1))
	le.PutUint32(r.mem[offDpf:], uint32(lo.Dpf))
	le.PutUint32(r.mem[offAlign:], uint32(lo.Align))
	le.PutUint64(r.mem[offSlotsOff:], lo.SlotsOff)
	le.PutUint64(r.mem[offFramesOff:], lo.FramesOff)
	// magic is published last, so that Open never accepts a partial header
	atomic.StoreUint32(r.u32(offMagic), Magic)

	if e = r.bind(lo); e != nil {
		return nil, multierr.Append(e, r.Close())
	}
	logger.Info("region created", zap.Stringer("region", r))
	return r, nil
}

// Open maps an existing region file and validates its header.
func Open(path string) (r *Region, e error) {
	file, e := os.OpenFile(path, os.O_RDWR, 0)
	if e != nil {
		return nil, e
	}
	info, e := file.Stat()
	if e != nil {
		return nil, multierr.Append(e, file.Close())
	}
	if info.Size() < HeaderSize {
		return nil, multierr.Append(fmt.Errorf("%w: file size %d is shorter than header", ErrHeader, info.Size()), file.Close())
	}

	if r, e = mapRegion(file, path, int(info.Size())); e != nil {
		return nil, e
	}
	lo, e := readHeader(r.mem)
	if e == nil {
		e = r.bind(lo)
	}
	if e != nil {
		return nil, multierr.Append(e, r.Close())
	}
	logger.Info("region opened", zap.Stringer("region", r))
	return r, nil
}

func mapRegion(file *os.File, path string, size int) (*Region, error) {
	mem, e := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if e != nil {
		return nil, multierr.Append(fmt.Errorf("mmap: %w", e), file.Close())
	}
	return &Region{mem: mem, file: file, path: path}, nil
}

func (r *Region) u32(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&r.mem[off]))
}

func (r *Region) bind(lo Layout) (e error) {
	r.lo = lo
	slots := unsafe.Slice((*uint32)(unsafe.Pointer(&r.mem[lo.SlotsOff])), lo.RingSize)
	descs := unsafe.Slice((*frame.Descriptor)(unsafe.Pointer(&r.mem[lo.FramesOff])), lo.RingSize*lo.Dpf)

	r.lane = &channel.Lane{}
	if r.lane.Ring, e = spscring.FromMemory(r.u32(offHead), r.u32(offTail), slots); e != nil {
		return e
	}
	if r.lane.Frames, e = frame.PoolFromMemory(descs, lo.Dpf); e != nil {
		return e
	}
	return nil
}

// Lane returns the lane whose ring and frames live in this region.
// It has no completion ring.
func (r *Region) Lane() *channel.Lane {
	return r.lane
}

// Layout returns the region layout.
func (r *Region) Layout() Layout {
	return r.lo
}

// RingPow2 returns log2 of ring capacity.
func (r *Region) RingPow2() int {
	return bits.TrailingZeros(uint(r.lo.RingSize))
}

// Path returns the region file path.
func (r *Region) Path() string {
	return r.path
}

// Close unmaps the region.
// The file is kept.
func (r *Region) Close() error {
	if r.mem == nil {
		return nil
	}
	errs := []error{unix.Munmap(r.mem), r.file.Close()}
	r.mem, r.file, r.lane = nil, nil, nil
	return multierr.Combine(errs...)
}

func (r *Region) String() string {
	return fmt.Sprintf("%s(ring=%d dpf=%d align=%d)", r.path, r.lo.RingSize, r.lo.Dpf, r.lo.Align)
}
