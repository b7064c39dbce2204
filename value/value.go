// Package value implements the self-describing tagged value tree used as the
// daemon's wire payload for document metadata, the registry, fstab and sync
// rules. Values are immutable once constructed.
package value

import (
	"sort"

	"github.com/orbaslabs/peerdrive/ids"
)

// Kind identifies which of the value tree's variants a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindDouble
	KindString
	KindList
	KindDict
	KindLink
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindDict:
		return "dict"
	case KindLink:
		return "link"
	default:
		return "unknown"
	}
}

// Value is a tagged variant: exactly one field group is meaningful,
// determined by kind.
type Value struct {
	kind Kind

	b   bool
	i   int64
	u   uint64
	f32 float32
	f64 float64
	s   string

	list []Value
	dict map[string]Value

	linkIsDoc bool
	linkID    string
	linkStore ids.DocId
}

func Null() Value { return Value{kind: KindNull} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Int(i int64) Value { return Value{kind: KindInt, i: i} }
func Uint(u uint64) Value { return Value{kind: KindUint, u: u} }
func Float32(f float32) Value { return Value{kind: KindFloat, f32: f} }
func Float64(f float64) Value { return Value{kind: KindDouble, f64: f} }
func String(s string) Value { return Value{kind: KindString, s: s} }

// List builds an ordered list value; the supplied slice is copied.
func List(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, list: cp}
}

// Dict builds a dict value from a Go map. Duplicate keys cannot occur since
// Go maps already enforce uniqueness; iteration order is always normalized
// to lexicographic on encode (see codec.go), matching the "last wins" /
// deterministic-encode invariant of the wire codec.
func Dict(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindDict, dict: cp}
}

// RevLink builds a value holding an opaque revision-link reference. The
// store is not part of the wire encoding; it is only meaningful for
// in-memory values produced by Decode, which stamps it from the decode
// context.
func RevLink(id []byte) Value {
	return Value{kind: KindLink, linkIsDoc: false, linkID: string(id)}
}

// DocLink builds a value holding an opaque document-link reference.
func DocLink(id []byte) Value {
	return Value{kind: KindLink, linkIsDoc: true, linkID: string(id)}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }
func (v Value) Int() (int64, bool) { return v.i, v.kind == KindInt }
func (v Value) Uint() (uint64, bool) { return v.u, v.kind == KindUint }
func (v Value) Float32() (float32, bool) { return v.f32, v.kind == KindFloat }
func (v Value) Float64() (float64, bool) { return v.f64, v.kind == KindDouble }
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// List returns the ordered elements of a list value.
func (v Value) List() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

// Keys returns the dict's keys in lexicographic order, matching the decode
// and encode iteration order the codec mandates.
func (v Value) Keys() []string {
	if v.kind != KindDict {
		return nil
	}
	keys := make([]string, 0, len(v.dict))
	for k := range v.dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get looks up a dict entry by key.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindDict {
		return Value{}, false
	}
	val, ok := v.dict[key]
	return val, ok
}

// Len reports the element/entry count of a list or dict value.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindDict:
		return len(v.dict)
	default:
		return 0
	}
}

// LinkInfo returns the raw link id, whether it addresses a document (as
// opposed to a concrete revision), and the store inherited from the decode
// context (empty for values built directly via RevLink/DocLink).
func (v Value) LinkInfo() (id []byte, isDoc bool, store ids.DocId, ok bool) {
	if v.kind != KindLink {
		return nil, false, "", false
	}
	return []byte(v.linkID), v.linkIsDoc, v.linkStore, true
}

// withStore returns a copy of a link value stamped with the decode context's
// store id.
func (v Value) withStore(store ids.DocId) Value {
	v.linkStore = store
	return v
}

// Equal reports whether v and o hold the same logical value, independent of
// which integer-width tag the codec would choose to encode them with.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		// A non-negative Int encodes with an unsigned tag and decodes as a
		// Uint; the two are the same logical value.
		switch {
		case v.kind == KindInt && o.kind == KindUint:
			return v.i >= 0 && uint64(v.i) == o.u
		case v.kind == KindUint && o.kind == KindInt:
			return o.i >= 0 && uint64(o.i) == v.u
		}
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindUint:
		return v.u == o.u
	case KindFloat:
		return v.f32 == o.f32
	case KindDouble:
		return v.f64 == o.f64
	case KindString:
		return v.s == o.s
	case KindLink:
		return v.linkIsDoc == o.linkIsDoc && v.linkID == o.linkID
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if len(v.dict) != len(o.dict) {
			return false
		}
		for k, val := range v.dict {
			ov, ok := o.dict[k]
			if !ok || !val.Equal(ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
