package value

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/orbaslabs/peerdrive/ids"
)

// ErrValue is the sentinel all codec violations wrap.
var ErrValue = errors.New("value: codec error")

func valueErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValue}, args...)...)
}

const (
	tagDict    = 0x00
	tagList    = 0x10
	tagString  = 0x20
	tagBool    = 0x30
	tagRevLink = 0x40
	tagDocLink = 0x41
	tagF32     = 0x50
	tagF64     = 0x51
	tagU8      = 0x60
	tagU16     = 0x61
	tagU32     = 0x62
	tagU64     = 0x63
	tagS8      = 0x64
	tagS16     = 0x65
	tagS32     = 0x66
	tagS64     = 0x67
)

// Encode serializes v per the wire tag table. It returns ErrValue if v is
// KindNull or holds an invalid/unrepresentable variant; the tag table has
// no slot for null.
func Encode(v Value) ([]byte, error) {
	var buf []byte
	if err := encodeInto(&buf, v); err != nil {
		return nil, err
	}
	return buf, nil
}

func encodeInto(buf *[]byte, v Value) error {
	switch v.kind {
	case KindDict:
		keys := v.Keys()
		*buf = append(*buf, tagDict)
		*buf = appendU32(*buf, uint32(len(keys)))
		for _, k := range keys {
			*buf = appendU32(*buf, uint32(len(k)))
			*buf = append(*buf, k...)
			if err := encodeInto(buf, v.dict[k]); err != nil {
				return err
			}
		}
		return nil
	case KindList:
		*buf = append(*buf, tagList)
		*buf = appendU32(*buf, uint32(len(v.list)))
		for _, item := range v.list {
			if err := encodeInto(buf, item); err != nil {
				return err
			}
		}
		return nil
	case KindString:
		*buf = append(*buf, tagString)
		*buf = appendU32(*buf, uint32(len(v.s)))
		*buf = append(*buf, v.s...)
		return nil
	case KindBool:
		*buf = append(*buf, tagBool)
		if v.b {
			*buf = append(*buf, 1)
		} else {
			*buf = append(*buf, 0)
		}
		return nil
	case KindLink:
		if v.linkIsDoc {
			*buf = append(*buf, tagDocLink)
		} else {
			*buf = append(*buf, tagRevLink)
		}
		if len(v.linkID) > math.MaxUint8 {
			return valueErr("link id too long (%d bytes)", len(v.linkID))
		}
		*buf = append(*buf, byte(len(v.linkID)))
		*buf = append(*buf, v.linkID...)
		return nil
	case KindFloat:
		*buf = append(*buf, tagF32)
		*buf = appendU32(*buf, math.Float32bits(v.f32))
		return nil
	case KindDouble:
		*buf = append(*buf, tagF64)
		*buf = appendU64(*buf, math.Float64bits(v.f64))
		return nil
	case KindUint:
		return encodeUint(buf, v.u)
	case KindInt:
		if v.i >= 0 {
			return encodeUint(buf, uint64(v.i))
		}
		return encodeSignedNegative(buf, v.i)
	case KindNull:
		return valueErr("cannot encode null: no wire tag defined")
	default:
		return valueErr("cannot encode invalid value")
	}
}

// encodeUint picks the narrowest unsigned tag that fits u. Non-negative
// KindInt values are funneled here too: a signed value that is
// non-negative encodes as unsigned.
func encodeUint(buf *[]byte, u uint64) error {
	switch {
	case u <= math.MaxUint8:
		*buf = append(*buf, tagU8, byte(u))
	case u <= math.MaxUint16:
		*buf = append(*buf, tagU16)
		*buf = appendU16(*buf, uint16(u))
	case u <= math.MaxUint32:
		*buf = append(*buf, tagU32)
		*buf = appendU32(*buf, uint32(u))
	default:
		*buf = append(*buf, tagU64)
		*buf = appendU64(*buf, u)
	}
	return nil
}

// encodeSignedNegative picks the narrowest signed tag for a strictly
// negative value. Each range check includes the type's minimum (i >= MinIntN),
// so MinInt8 itself still encodes as s8.
func encodeSignedNegative(buf *[]byte, i int64) error {
	switch {
	case i >= math.MinInt8:
		*buf = append(*buf, tagS8, byte(int8(i)))
	case i >= math.MinInt16:
		*buf = append(*buf, tagS16)
		*buf = appendU16(*buf, uint16(int16(i)))
	case i >= math.MinInt32:
		*buf = append(*buf, tagS32)
		*buf = appendU32(*buf, uint32(int32(i)))
	default:
		*buf = append(*buf, tagS64)
		*buf = appendU64(*buf, uint64(i))
	}
	return nil
}

func appendU16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// Decode parses a single value from data, attaching store to any link
// variant encountered; link values never carry the containing store id on
// the wire. It returns the number of bytes consumed.
func Decode(data []byte, store ids.DocId) (Value, int, error) {
	d := decoder{buf: data, store: store}
	v, err := d.value()
	if err != nil {
		return Value{}, 0, err
	}
	return v, d.off, nil
}

type decoder struct {
	buf   []byte
	off   int
	store ids.DocId
}

func (d *decoder) remaining() int { return len(d.buf) - d.off }

func (d *decoder) byte() (byte, error) {
	if d.remaining() < 1 {
		return 0, valueErr("truncated input reading tag/byte")
	}
	b := d.buf[d.off]
	d.off++
	return b, nil
}

func (d *decoder) bytes(n int) ([]byte, error) {
	if n < 0 || d.remaining() < n {
		return nil, valueErr("truncated input: need %d bytes, have %d", n, d.remaining())
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) u16() (uint16, error) {
	b, err := d.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *decoder) u32() (uint32, error) {
	b, err := d.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *decoder) u64() (uint64, error) {
	b, err := d.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *decoder) value() (Value, error) {
	tag, err := d.byte()
	if err != nil {
		return Value{}, err
	}
	switch tag {
	case tagDict:
		count, err := d.u32()
		if err != nil {
			return Value{}, err
		}
		m := make(map[string]Value, count)
		for i := uint32(0); i < count; i++ {
			klen, err := d.u32()
			if err != nil {
				return Value{}, err
			}
			kb, err := d.bytes(int(klen))
			if err != nil {
				return Value{}, err
			}
			if !utf8.Valid(kb) {
				return Value{}, valueErr("dict key is not valid utf-8")
			}
			val, err := d.value()
			if err != nil {
				return Value{}, err
			}
			m[string(kb)] = val // last wins
		}
		return Value{kind: KindDict, dict: m}, nil

	case tagList:
		count, err := d.u32()
		if err != nil {
			return Value{}, err
		}
		list := make([]Value, 0, count)
		for i := uint32(0); i < count; i++ {
			val, err := d.value()
			if err != nil {
				return Value{}, err
			}
			list = append(list, val)
		}
		return Value{kind: KindList, list: list}, nil

	case tagString:
		slen, err := d.u32()
		if err != nil {
			return Value{}, err
		}
		sb, err := d.bytes(int(slen))
		if err != nil {
			return Value{}, err
		}
		if !utf8.Valid(sb) {
			return Value{}, valueErr("string is not valid utf-8")
		}
		return Value{kind: KindString, s: string(sb)}, nil

	case tagBool:
		b, err := d.byte()
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindBool, b: b != 0}, nil

	case tagRevLink, tagDocLink:
		blen, err := d.byte()
		if err != nil {
			return Value{}, err
		}
		idb, err := d.bytes(int(blen))
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindLink, linkIsDoc: tag == tagDocLink, linkID: string(idb)}.withStore(d.store), nil

	case tagF32:
		bits, err := d.u32()
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindFloat, f32: math.Float32frombits(bits)}, nil

	case tagF64:
		bits, err := d.u64()
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindDouble, f64: math.Float64frombits(bits)}, nil

	case tagU8:
		b, err := d.byte()
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindUint, u: uint64(b)}, nil
	case tagU16:
		v, err := d.u16()
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindUint, u: uint64(v)}, nil
	case tagU32:
		v, err := d.u32()
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindUint, u: uint64(v)}, nil
	case tagU64:
		v, err := d.u64()
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindUint, u: v}, nil

	case tagS8:
		b, err := d.byte()
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindInt, i: int64(int8(b))}, nil
	case tagS16:
		v, err := d.u16()
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindInt, i: int64(int16(v))}, nil
	case tagS32:
		v, err := d.u32()
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindInt, i: int64(int32(v))}, nil
	case tagS64:
		v, err := d.u64()
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindInt, i: int64(v)}, nil

	default:
		return Value{}, valueErr("unknown tag 0x%02x", tag)
	}
}
