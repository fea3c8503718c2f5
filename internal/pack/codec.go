// Package pack fetches and decodes the binary column packs that back
// category datasets.
package pack

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"
	"math"

	"github.com/rotisserie/eris"
)

// Pack file layout, little-endian throughout, gzip-wrapped on the wire:
//
//	magic   "CPK1"
//	u32     row count
//	u32     id block size, then that many id records (u16 len + bytes)
//	u32     column count, then per column:
//	          u16 len + name bytes
//	          u8  dtype
//	          payload (see dtype)
//
// Numeric payloads hold one value per row. Unsigned dtypes reserve
// their maximum value as the missing sentinel; f32 uses NaN directly.
// String columns carry a dictionary (u32 size, u16-len entries) and one
// u32 dictionary index per row.
const magic = "CPK1"

// Column dtypes.
const (
	DtypeF32 byte = iota
	DtypeU8
	DtypeU16
	DtypeU32
	DtypeString
)

// Missing sentinels for the unsigned dtypes.
const (
	sentinelU8  = math.MaxUint8
	sentinelU16 = math.MaxUint16
	sentinelU32 = math.MaxUint32
)

// File is one decoded pack.
type File struct {
	IDs     []string
	Numeric map[string][]float32
	Strings map[string]StringColumn
}

// StringColumn is a dictionary-encoded string column.
type StringColumn struct {
	Indexes []uint32
	Dict    []string
}

// Values materializes the column.
func (c StringColumn) Values() []string {
	out := make([]string, len(c.Indexes))
	for i, idx := range c.Indexes {
		if int(idx) < len(c.Dict) {
			out[i] = c.Dict[idx]
		}
	}
	return out
}

// Decode reads a gzip-wrapped pack stream.
func Decode(r io.Reader) (*File, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "pack: open gzip")
	}
	defer func() { _ = gz.Close() }()

	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, eris.Wrap(err, "pack: read")
	}
	return decodeRaw(raw)
}

func decodeRaw(raw []byte) (*File, error) {
	rd := &reader{buf: raw}

	if string(rd.bytes(4)) != magic {
		return nil, eris.New("pack: bad magic")
	}
	rows := int(rd.u32())

	idCount := int(rd.u32())
	if idCount != rows {
		return nil, eris.Errorf("pack: id count %d does not match row count %d", idCount, rows)
	}
	ids := make([]string, rows)
	for i := range ids {
		ids[i] = rd.str16()
	}

	f := &File{
		IDs:     ids,
		Numeric: map[string][]float32{},
		Strings: map[string]StringColumn{},
	}

	cols := int(rd.u32())
	for c := 0; c < cols; c++ {
		name := rd.str16()
		dtype := rd.u8()
		switch dtype {
		case DtypeF32, DtypeU8, DtypeU16, DtypeU32:
			col, err := rd.numeric(dtype, rows)
			if err != nil {
				return nil, eris.Wrapf(err, "pack: column %s", name)
			}
			f.Numeric[name] = col
		case DtypeString:
			col, err := rd.stringCol(rows)
			if err != nil {
				return nil, eris.Wrapf(err, "pack: column %s", name)
			}
			f.Strings[name] = col
		default:
			return nil, eris.Errorf("pack: column %s has unknown dtype %d", name, dtype)
		}
	}
	if rd.err != nil {
		return nil, eris.Wrap(rd.err, "pack: truncated")
	}
	return f, nil
}

// numeric decodes one value per row into float32, mapping each dtype's
// missing sentinel to NaN.
func (rd *reader) numeric(dtype byte, rows int) ([]float32, error) {
	out := make([]float32, rows)
	for i := 0; i < rows; i++ {
		switch dtype {
		case DtypeF32:
			out[i] = math.Float32frombits(rd.u32())
		case DtypeU8:
			v := rd.u8()
			if v == sentinelU8 {
				out[i] = float32(math.NaN())
			} else {
				out[i] = float32(v)
			}
		case DtypeU16:
			v := rd.u16()
			if v == sentinelU16 {
				out[i] = float32(math.NaN())
			} else {
				out[i] = float32(v)
			}
		case DtypeU32:
			v := rd.u32()
			if v == sentinelU32 {
				out[i] = float32(math.NaN())
			} else {
				out[i] = float32(v)
			}
		}
	}
	return out, rd.err
}

func (rd *reader) stringCol(rows int) (StringColumn, error) {
	dictSize := int(rd.u32())
	dict := make([]string, dictSize)
	for i := range dict {
		dict[i] = rd.str16()
	}
	indexes := make([]uint32, rows)
	for i := range indexes {
		indexes[i] = rd.u32()
		if rd.err == nil && int(indexes[i]) >= dictSize {
			return StringColumn{}, eris.Errorf("dictionary index %d out of range (dict size %d)", indexes[i], dictSize)
		}
	}
	return StringColumn{Indexes: indexes, Dict: dict}, rd.err
}

// reader is a cursor over the raw pack bytes. The first short read
// latches err and every later call returns zeros, so decode loops stay
// unconditional.
type reader struct {
	buf []byte
	off int
	err error
}

func (rd *reader) bytes(n int) []byte {
	if rd.err != nil || rd.off+n > len(rd.buf) {
		if rd.err == nil {
			rd.err = io.ErrUnexpectedEOF
		}
		return make([]byte, n)
	}
	b := rd.buf[rd.off : rd.off+n]
	rd.off += n
	return b
}

func (rd *reader) u8() byte    { return rd.bytes(1)[0] }
func (rd *reader) u16() uint16 { return binary.LittleEndian.Uint16(rd.bytes(2)) }
func (rd *reader) u32() uint32 { return binary.LittleEndian.Uint32(rd.bytes(4)) }

func (rd *reader) str16() string {
	n := int(rd.u16())
	return string(rd.bytes(n))
}

// Encode writes a pack stream, gzip-wrapped. The inverse of Decode,
// used by the import command.
func Encode(w io.Writer, f *File) error {
	var buf bytes.Buffer
	buf.WriteString(magic)
	writeU32(&buf, uint32(len(f.IDs)))

	writeU32(&buf, uint32(len(f.IDs)))
	for _, id := range f.IDs {
		writeStr16(&buf, id)
	}

	writeU32(&buf, uint32(len(f.Numeric)+len(f.Strings)))
	for name, col := range f.Numeric {
		if len(col) != len(f.IDs) {
			return eris.Errorf("pack: column %s has %d rows, want %d", name, len(col), len(f.IDs))
		}
		writeStr16(&buf, name)
		buf.WriteByte(DtypeF32)
		for _, v := range col {
			writeU32(&buf, math.Float32bits(v))
		}
	}
	for name, col := range f.Strings {
		if len(col.Indexes) != len(f.IDs) {
			return eris.Errorf("pack: column %s has %d rows, want %d", name, len(col.Indexes), len(f.IDs))
		}
		writeStr16(&buf, name)
		buf.WriteByte(DtypeString)
		writeU32(&buf, uint32(len(col.Dict)))
		for _, s := range col.Dict {
			writeStr16(&buf, s)
		}
		for _, idx := range col.Indexes {
			writeU32(&buf, idx)
		}
	}

	gz := gzip.NewWriter(w)
	if _, err := gz.Write(buf.Bytes()); err != nil {
		return eris.Wrap(err, "pack: write gzip")
	}
	return eris.Wrap(gz.Close(), "pack: close gzip")
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeStr16(buf *bytes.Buffer, s string) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(len(s)))
	buf.Write(b[:])
	buf.WriteString(s)
}
