package bininfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortPathReturnsComponentPastLastSlash(t *testing.T) {
	assert.Equal(t, "libfoo.so.1", shortPath("/usr/lib/x86_64-linux-gnu/libfoo.so.1"))
	assert.Equal(t, "a.out", shortPath("a.out"))
	assert.Equal(t, "", shortPath(""))
}

func TestAppendOffsetStrOmitsZeroOffset(t *testing.T) {
	assert.Equal(t, "main", appendOffsetStr("main", 0x1000, 0x1000))
	assert.Equal(t, "main+0x10", appendOffsetStr("main", 0x1000, 0x1010))
}

func TestParseBuildIDNoteRoundTrip(t *testing.T) {
	id := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	buf := buildNote(t, "GNU", 3, id)

	got, ok := parseBuildIDNote(buf)
	require.True(t, ok)
	assert.Equal(t, id, got)
}

func TestParseBuildIDNoteRejectsWrongName(t *testing.T) {
	buf := buildNote(t, "XYZ", 3, []byte{1, 2, 3, 4})
	_, ok := parseBuildIDNote(buf)
	assert.False(t, ok)
}

func TestRangesContain(t *testing.T) {
	ranges := [][2]uint64{{0x1000, 0x1010}, {0x2000, 0x2020}}
	assert.True(t, rangesContain(ranges, 0x1005))
	assert.True(t, rangesContain(ranges, 0x2000))
	assert.False(t, rangesContain(ranges, 0x1010))
	assert.False(t, rangesContain(ranges, 0x3000))
}

func TestLowFromRanges(t *testing.T) {
	assert.Equal(t, uint64(0x1000), lowFromRanges([][2]uint64{{0x2000, 0x2010}, {0x1000, 0x1010}}))
	assert.Equal(t, uint64(0), lowFromRanges(nil))
}

func TestGetBinLocFormatsByPICMode(t *testing.T) {
	b := &BinaryInfo{lowAddr: 0x400000, isPIC: true}
	loc, err := b.GetBinLoc(0x400100)
	require.NoError(t, err)
	assert.Equal(t, "+0x100", loc)

	b2 := &BinaryInfo{lowAddr: 0x400000, isPIC: false}
	loc2, err := b2.GetBinLoc(0x400100)
	require.NoError(t, err)
	assert.Equal(t, "@0x400100", loc2)
}

func TestGetBinLocRejectsBuildIDMismatch(t *testing.T) {
	b := &BinaryInfo{buildID: []byte{1}, fileBuildIDMatches: false}
	_, err := b.GetBinLoc(0x1000)
	assert.Error(t, err)
}

func TestHasAddress(t *testing.T) {
	b := &BinaryInfo{lowAddr: 0x1000, highAddr: 0x2000}
	assert.True(t, b.HasAddress(0x1000))
	assert.True(t, b.HasAddress(0x1fff))
	assert.False(t, b.HasAddress(0x2000))
	assert.False(t, b.HasAddress(0xfff))
}

// buildNote assembles a single raw ELF note entry (name/desc padded to
// 4 bytes) the way parseBuildIDNote expects to read it.
func buildNote(t *testing.T, name string, noteType uint32, desc []byte) []byte {
	t.Helper()
	nameBytes := append([]byte(name), 0)
	buf := make([]byte, 0, 64)
	buf = appendLE32(buf, uint32(len(nameBytes)))
	buf = appendLE32(buf, uint32(len(desc)))
	buf = appendLE32(buf, noteType)
	buf = append(buf, nameBytes...)
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	buf = append(buf, desc...)
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	return buf
}

func appendLE32(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
