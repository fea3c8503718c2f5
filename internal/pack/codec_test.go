package pack

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	nan := float32(math.NaN())
	in := &File{
		IDs: []string{"12086", "12011", "12099"},
		Numeric: map[string][]float32{
			"pop_density": {1500, nan, 42.5},
		},
		Strings: map[string]StringColumn{
			"class": {Indexes: []uint32{0, 1, 0}, Dict: []string{"urban", "rural"}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, in))

	out, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, in.IDs, out.IDs)

	col := out.Numeric["pop_density"]
	require.Len(t, col, 3)
	assert.Equal(t, float32(1500), col[0])
	assert.True(t, math.IsNaN(float64(col[1])))
	assert.Equal(t, float32(42.5), col[2])

	assert.Equal(t, []string{"urban", "rural", "urban"}, out.Strings["class"].Values())
}

func TestEncode_RowCountMismatch(t *testing.T) {
	in := &File{
		IDs:     []string{"a", "b"},
		Numeric: map[string][]float32{"m": {1}},
	}
	err := Encode(&bytes.Buffer{}, in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rows")
}

// rawPack hand-assembles an uncompressed pack body.
type rawPack struct {
	bytes.Buffer
}

func (p *rawPack) u8(v byte)    { p.WriteByte(v) }
func (p *rawPack) u16(v uint16) { _ = binary.Write(p, binary.LittleEndian, v) }
func (p *rawPack) u32(v uint32) { _ = binary.Write(p, binary.LittleEndian, v) }
func (p *rawPack) str(s string) {
	p.u16(uint16(len(s)))
	p.WriteString(s)
}

func gzipped(t *testing.T, raw []byte) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(raw)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return &buf
}

func TestDecode_UnsignedSentinels(t *testing.T) {
	var p rawPack
	p.WriteString("CPK1")
	p.u32(2) // rows
	p.u32(2) // ids
	p.str("a")
	p.str("b")
	p.u32(3) // columns

	p.str("small")
	p.u8(DtypeU8)
	p.u8(7)
	p.u8(math.MaxUint8) // missing

	p.str("medium")
	p.u8(DtypeU16)
	p.u16(40000)
	p.u16(math.MaxUint16) // missing

	p.str("large")
	p.u8(DtypeU32)
	p.u32(3_000_000)
	p.u32(math.MaxUint32) // missing

	f, err := Decode(gzipped(t, p.Bytes()))
	require.NoError(t, err)

	assert.Equal(t, float32(7), f.Numeric["small"][0])
	assert.True(t, math.IsNaN(float64(f.Numeric["small"][1])))
	assert.Equal(t, float32(40000), f.Numeric["medium"][0])
	assert.True(t, math.IsNaN(float64(f.Numeric["medium"][1])))
	assert.Equal(t, float32(3_000_000), f.Numeric["large"][0])
	assert.True(t, math.IsNaN(float64(f.Numeric["large"][1])))
}

func TestDecode_BadMagic(t *testing.T) {
	_, err := Decode(gzipped(t, []byte("NOPE\x00\x00\x00\x00")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad magic")
}

func TestDecode_IDCountMismatch(t *testing.T) {
	var p rawPack
	p.WriteString("CPK1")
	p.u32(2)
	p.u32(1)
	p.str("a")
	p.u32(0)

	_, err := Decode(gzipped(t, p.Bytes()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id count")
}

func TestDecode_Truncated(t *testing.T) {
	var p rawPack
	p.WriteString("CPK1")
	p.u32(5) // claims 5 rows, then ends

	_, err := Decode(gzipped(t, p.Bytes()))
	require.Error(t, err)
}

func TestDecode_DictIndexOutOfRange(t *testing.T) {
	var p rawPack
	p.WriteString("CPK1")
	p.u32(1)
	p.u32(1)
	p.str("a")
	p.u32(1)
	p.str("class")
	p.u8(DtypeString)
	p.u32(1) // dict size 1
	p.str("urban")
	p.u32(9) // index past the dictionary

	_, err := Decode(gzipped(t, p.Bytes()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestDecode_UnknownDtype(t *testing.T) {
	var p rawPack
	p.WriteString("CPK1")
	p.u32(0)
	p.u32(0)
	p.u32(1)
	p.str("m")
	p.u8(0xee)

	_, err := Decode(gzipped(t, p.Bytes()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dtype")
}

func TestDecode_NotGzip(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("plain")))
	require.Error(t, err)
}
