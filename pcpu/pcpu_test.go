package pcpu_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/usnistgov/hugeplane/core/testenv"
	"github.com/usnistgov/hugeplane/core/xorshift"
	"github.com/usnistgov/hugeplane/mem/frame"
	"github.com/usnistgov/hugeplane/pcpu"
	"github.com/usnistgov/hugeplane/pcpu/ops"
)

var makeAR = testenv.MakeAR

func makeBlob(size int, seed uint64) []byte {
	b := make([]byte, size)
	xorshift.New(seed).Fill(b)
	return b
}

func TestParseProgram(t *testing.T) {
	assert, require := makeAR(t)

	prog, e := pcpu.ParseProgram("XOR8:0xFF fnv64, CRC32C 'COUNTEQ8:7' ADD8:255 HIST8:0o10")
	require.NoError(e)
	assert.Equal(pcpu.Program{
		{Op: pcpu.OpXOR8, Imm: 0xFF},
		{Op: pcpu.OpFNV64},
		{Op: pcpu.OpCRC32C},
		{Op: pcpu.OpCountEq8, Imm: 7},
		{Op: pcpu.OpADD8, Imm: 255},
		{Op: pcpu.OpHist8, Imm: 8},
	}, prog)
	assert.Equal("XOR8:0xFF FNV64 CRC32C COUNTEQ8:0x07 ADD8:0xFF HIST8:0x08", prog.String())
	assert.True(prog.Mutates())

	prog, e = pcpu.ParseProgram("")
	assert.NoError(e)
	assert.Nil(prog)

	_, e = pcpu.ParseProgram("XOR8 SHA256")
	assert.ErrorIs(e, pcpu.ErrOp)
	_, e = pcpu.ParseProgram("XOR8:256")
	assert.ErrorIs(e, pcpu.ErrImm)
	_, e = pcpu.ParseProgram("NONE")
	assert.ErrorIs(e, pcpu.ErrOp)
	_, e = pcpu.ParseProgram("'XOR8")
	assert.Error(e)
	_, e = pcpu.ParseProgram("FNV64 FNV64 FNV64 FNV64 FNV64 FNV64 FNV64 FNV64 FNV64 FNV64 FNV64 FNV64 FNV64 FNV64 FNV64 FNV64 FNV64")
	assert.ErrorIs(e, pcpu.ErrTooManySteps)

	assert.ErrorIs(pcpu.Program{{Op: pcpu.Op(99)}}.Validate(), pcpu.ErrOp)
}

func TestProgramJSON(t *testing.T) {
	assert, require := makeAR(t)

	var cfg struct {
		Program pcpu.Program `json:"program"`
		Op      pcpu.Op      `json:"op"`
	}
	require.NoError(json.Unmarshal([]byte(`{"program":"XOR8:0xA5 FNV64","op":"crc32c"}`), &cfg))
	assert.Equal(pcpu.Program{{Op: pcpu.OpXOR8, Imm: 0xA5}, {Op: pcpu.OpFNV64}}, cfg.Program)
	assert.Equal(pcpu.OpCRC32C, cfg.Op)

	j, e := json.Marshal(cfg)
	require.NoError(e)
	assert.JSONEq(`{"program":"XOR8:0xA5 FNV64","op":"CRC32C"}`, string(j))
}

func TestDeterministicFNV(t *testing.T) {
	assert, _ := makeAR(t)

	blob := makeBlob(1<<20, 1)
	descs := []frame.Descriptor{{Offset: 0, Len: 1 << 20}}
	m := pcpu.Apply(blob, descs, pcpu.OpFNV64, 0, ops.FNVOffsetBasis)
	assert.EqualValues(uint64(0xb98a6cb47ca1d881), m.ChecksumOut)
	assert.EqualValues(1<<20, m.BytesTotal)
	assert.EqualValues(1<<20, m.BytesTouched)
	assert.EqualValues(1, m.DescCount)
	assert.Zero(m.Cycles)

	// a partition of the span yields the same hash
	parts := []frame.Descriptor{{Offset: 0, Len: 1000}, {Offset: 1000, Len: 4096}, {Offset: 5096, Len: 1<<20 - 5096}}
	m2 := pcpu.Apply(blob, parts, pcpu.OpFNV64, 0, ops.FNVOffsetBasis)
	assert.Equal(m.ChecksumOut, m2.ChecksumOut)
	assert.EqualValues(3, m2.DescCount)

	m3 := pcpu.Apply(blob, descs, pcpu.OpCRC32C, 0, ops.FNVOffsetBasis)
	assert.EqualValues(0xf119838b, m3.ChecksumOut)
	m4 := pcpu.Apply(blob, parts, pcpu.OpCRC32C, 0, 12345)
	assert.Equal(m3.ChecksumOut, m4.ChecksumOut)
}

func TestXORRoundTrip(t *testing.T) {
	assert, _ := makeAR(t)

	blob := makeBlob(65536, 2)
	orig := bytes.Clone(blob)
	descs := []frame.Descriptor{{Offset: 0, Len: 65536}}

	var total pcpu.Metrics
	m := pcpu.Apply(blob, descs, pcpu.OpXOR8, 0xA5, ops.FNVOffsetBasis)
	assert.EqualValues(uint64(ops.FNVOffsetBasis), m.ChecksumOut)
	assert.False(bytes.Equal(orig, blob))
	total.Add(m)
	total.Add(pcpu.Apply(blob, descs, pcpu.OpXOR8, 0xA5, ops.FNVOffsetBasis))
	assert.True(bytes.Equal(orig, blob))
	assert.EqualValues(131072, total.BytesTouched)

	pcpu.Apply(blob, descs, pcpu.OpADD8, 0x30, 0)
	pcpu.Apply(blob, descs, pcpu.OpADD8, 256-0x30, 0)
	assert.True(bytes.Equal(orig, blob))
}

func TestClamp(t *testing.T) {
	assert, _ := makeAR(t)

	blob := makeBlob(4096, 4)
	blob[4091], blob[4094] = 0, 0
	orig := bytes.Clone(blob)

	descs := []frame.Descriptor{{Offset: 4090, Len: 100}}
	m := pcpu.Apply(blob, descs, pcpu.OpCountEq8, 0, ops.FNVOffsetBasis)
	assert.EqualValues(100, m.BytesTotal)
	assert.EqualValues(6, m.BytesTouched)
	assert.EqualValues(94, m.BytesClamped())
	assert.EqualValues(1, m.DescCount)
	assert.EqualValues(2, m.ChecksumOut)

	descs = []frame.Descriptor{
		{Offset: 4096, Len: 10},
		{Offset: 1 << 40, Len: 1},
		{Offset: 0, Len: 0},
		{Offset: 4000, Len: 0xFFFFFFFF},
	}
	m = pcpu.Apply(blob, descs, pcpu.OpXOR8, 0xFF, ops.FNVOffsetBasis)
	assert.EqualValues(10+1+0xFFFFFFFF, m.BytesTotal)
	assert.EqualValues(96, m.BytesTouched)
	assert.EqualValues(1, m.DescCount)
	assert.Equal(orig[:4000], blob[:4000])
	for i := 4000; i < 4096; i++ {
		assert.Equal(orig[i]^0xFF, blob[i])
	}
}

func TestProgramComposition(t *testing.T) {
	assert, require := makeAR(t)

	prog, e := pcpu.ParseProgram("XOR8:0xFF FNV64:0")
	require.NoError(e)

	blobA := makeBlob(65536, 6)
	blobB := bytes.Clone(blobA)
	descs := []frame.Descriptor{{Offset: 0, Len: 30000}, {Offset: 30000, Len: 35536}}

	mA := pcpu.ApplyProgram(blobA, descs, prog, ops.FNVOffsetBasis)
	ops.XOR8(blobB, 0xFF)
	mB := pcpu.Apply(blobB, descs, pcpu.OpFNV64, 0, ops.FNVOffsetBasis)

	assert.EqualValues(uint64(0x63a0143840861255), mA.ChecksumOut)
	assert.Equal(mB.ChecksumOut, mA.ChecksumOut)
	assert.Equal(mB.BytesTouched, mA.BytesTouched)
	assert.Equal(mB.DescCount, mA.DescCount)
	assert.Equal(blobB, blobA)

	// last checksum-producing step wins
	prog = pcpu.Program{{Op: pcpu.OpCountEq8, Imm: 0}, {Op: pcpu.OpXOR8, Imm: 1}}
	m := pcpu.ApplyProgram(makeBlob(1<<20, 1), []frame.Descriptor{{Offset: 0, Len: 1 << 20}}, prog, 0)
	assert.EqualValues(4088, m.ChecksumOut)

	m = pcpu.ApplyProgram(blobA, descs, nil, 77)
	assert.EqualValues(77, m.ChecksumOut)
	assert.EqualValues(65536, m.BytesTouched)
}

func TestHist8(t *testing.T) {
	assert, _ := makeAR(t)

	blob := makeBlob(10000, 3)
	m := pcpu.Apply(blob, []frame.Descriptor{{Offset: 0, Len: 10000}}, pcpu.OpHist8, 0x5A, 0)
	assert.EqualValues(uint64(0x4dd85a508e16fbf0), m.ChecksumOut)

	m1 := pcpu.Apply(blob, []frame.Descriptor{{Offset: 0, Len: 10000}, {Offset: 0, Len: 10000}}, pcpu.OpHist8, 0x5A, 0)
	assert.Zero(m1.ChecksumOut)
}
