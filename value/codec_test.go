package value

import (
	"bytes"
	"math"
	"testing"

	"github.com/orbaslabs/peerdrive/ids"
)

func roundTrip(t *testing.T, v Value) Value {
	t.Helper()
	enc, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, n, err := Decode(enc, ids.DocId(""))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n != len(enc) {
		t.Fatalf("Decode consumed %d of %d bytes", n, len(enc))
	}
	return got
}

func TestRoundTripScalars(t *testing.T) {
	cases := []Value{
		Bool(true),
		Bool(false),
		Int(0),
		Int(-1),
		Int(-128),
		Int(-129),
		Int(-32768),
		Int(-32769),
		Int(math.MinInt32),
		Int(math.MinInt32 - 1),
		Int(math.MinInt64),
		Uint(0),
		Uint(255),
		Uint(256),
		Uint(65535),
		Uint(65536),
		Uint(4294967295),
		Uint(4294967296),
		Float32(3.5),
		Float64(-2.25),
		String(""),
		String("hello, world"),
		RevLink([]byte{0xAA, 0xBB}),
		DocLink([]byte{0x01}),
		List(Int(1), Int(2), String("x")),
		Dict(map[string]Value{"a": Int(1), "b": String("two")}),
	}
	for _, v := range cases {
		got := roundTrip(t, v)
		if !got.Equal(v) {
			t.Fatalf("round trip mismatch for kind %v: got %#v want %#v", v.Kind(), got, v)
		}
	}
}

func TestIntegerTagWidthChoice(t *testing.T) {
	tbl := []struct {
		v   Value
		tag byte
	}{
		{Int(0), tagU8},
		{Int(127), tagU8},
		{Int(-1), tagS8},
		{Int(-128), tagS8},
		{Int(-129), tagS16},
		{Int(32767), tagU16},
		{Int(-32768), tagS16},
		{Int(-32769), tagS32},
		{Uint(255), tagU8},
		{Uint(256), tagU16},
		{Uint(65536), tagU32},
		{Uint(4294967296), tagU64},
	}
	for _, tc := range tbl {
		enc, err := Encode(tc.v)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if enc[0] != tc.tag {
			t.Fatalf("value %#v: want tag 0x%02x got 0x%02x", tc.v, tc.tag, enc[0])
		}
	}
}

func TestEncodeDictExample(t *testing.T) {
	// encode({ "k": 42 }) == 00 01 00 00 00  01 00 00 00  6B  60 2A
	v := Dict(map[string]Value{"k": Int(42)})
	enc, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 'k', 0x60, 0x2A}
	if !bytes.Equal(enc, want) {
		t.Fatalf("encoding mismatch: got % x want % x", enc, want)
	}
	got, _, err := Decode(enc, ids.DocId(""))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.Equal(v) {
		t.Fatalf("decoded value mismatch: %#v vs %#v", got, v)
	}
}

func TestDictKeyOrderIsLexicographic(t *testing.T) {
	v := Dict(map[string]Value{"zeta": Int(1), "alpha": Int(2), "mid": Int(3)})
	enc, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// re-encoding must be byte-identical: deterministic ordering.
	enc2, _ := Encode(v)
	if !bytes.Equal(enc, enc2) {
		t.Fatalf("encoding is not deterministic across calls")
	}
	ia, im, iz := bytes.Index(enc, []byte("alpha")), bytes.Index(enc, []byte("mid")), bytes.Index(enc, []byte("zeta"))
	if ia < 0 || !(ia < im && im < iz) {
		t.Fatalf("dict keys not encoded in lexicographic order: % x", enc)
	}
}

func TestDecodeTruncated(t *testing.T) {
	enc, _ := Encode(String("hello"))
	for n := 0; n < len(enc); n++ {
		if _, _, err := Decode(enc[:n], ids.DocId("")); err == nil {
			t.Fatalf("expected error decoding truncated prefix of length %d", n)
		}
	}
}

func TestDecodeInvalidTag(t *testing.T) {
	if _, _, err := Decode([]byte{0xFF}, ids.DocId("")); err == nil {
		t.Fatalf("expected error for invalid tag")
	}
}

func TestDecodeNonUTF8String(t *testing.T) {
	data := []byte{tagString, 0x02, 0x00, 0x00, 0x00, 0xFF, 0xFE}
	if _, _, err := Decode(data, ids.DocId("")); err == nil {
		t.Fatalf("expected ValueError for non-utf8 string")
	}
}

func TestDecodeStringLengthExceedsBuffer(t *testing.T) {
	data := []byte{tagString, 0xFF, 0x00, 0x00, 0x00, 'a'}
	if _, _, err := Decode(data, ids.DocId("")); err == nil {
		t.Fatalf("expected ValueError for oversized string length")
	}
}

func TestDecodeLinkInheritsStore(t *testing.T) {
	store := ids.NewDocId([]byte{0x01, 0x02})
	enc, _ := Encode(DocLink([]byte{0xDE, 0xAD}))
	got, _, err := Decode(enc, store)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	id, isDoc, gotStore, ok := got.LinkInfo()
	if !ok || !isDoc || gotStore != store || !bytes.Equal(id, []byte{0xDE, 0xAD}) {
		t.Fatalf("unexpected link info: %v %v %v %v", id, isDoc, gotStore, ok)
	}
}

func TestEncodeNullIsError(t *testing.T) {
	if _, err := Encode(Null()); err == nil {
		t.Fatalf("expected error encoding Null")
	}
}
