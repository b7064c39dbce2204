// Package rpcbody implements the daemon's request/response body encoding: a
// field-number + wire-type tagging scheme with variable-length integers,
// length-delimited bytes/strings and nested messages. Field numbers for the
// shared message shapes live in fields.go; encoding and decoding use the
// same wire primitives, google.golang.org/protobuf/encoding/protowire, that
// any implementation of such a schema would.
package rpcbody

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Builder accumulates fields into a message body.
type Builder struct {
	buf []byte
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) Bytes() []byte { return b.buf }

func (b *Builder) PutUint64(field protowire.Number, v uint64) {
	b.buf = protowire.AppendTag(b.buf, field, protowire.VarintType)
	b.buf = protowire.AppendVarint(b.buf, v)
}

func (b *Builder) PutInt64(field protowire.Number, v int64) {
	b.PutUint64(field, uint64(v))
}

func (b *Builder) PutBool(field protowire.Number, v bool) {
	var u uint64
	if v {
		u = 1
	}
	b.PutUint64(field, u)
}

func (b *Builder) PutBytes(field protowire.Number, v []byte) {
	b.buf = protowire.AppendTag(b.buf, field, protowire.BytesType)
	b.buf = protowire.AppendBytes(b.buf, v)
}

func (b *Builder) PutString(field protowire.Number, v string) {
	b.PutBytes(field, []byte(v))
}

// PutMessage embeds a nested, already-encoded message as a length-delimited
// field — used for repeated structured entries (mounts, rev-info maps,
// folder columns, ...).
func (b *Builder) PutMessage(field protowire.Number, msg []byte) {
	b.PutBytes(field, msg)
}

// Message is a parsed body: every occurrence of every field number,
// preserving repetition order (so repeated fields work without a schema
// describing cardinality up front).
type Message struct {
	varint map[protowire.Number][]uint64
	bytes  map[protowire.Number][][]byte
}

// Parse decodes data into a Message. Unknown wire types are rejected; this
// client only ever emits Varint and Bytes (length-delimited) fields.
func Parse(data []byte) (*Message, error) {
	m := &Message{varint: map[protowire.Number][]uint64{}, bytes: map[protowire.Number][][]byte{}}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("rpcbody: bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("rpcbody: bad varint: %w", protowire.ParseError(n))
			}
			m.varint[num] = append(m.varint[num], v)
			data = data[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("rpcbody: bad bytes: %w", protowire.ParseError(n))
			}
			cp := append([]byte(nil), v...)
			m.bytes[num] = append(m.bytes[num], cp)
			data = data[n:]
		default:
			return nil, fmt.Errorf("rpcbody: unsupported wire type %d for field %d", typ, num)
		}
	}
	return m, nil
}

func (m *Message) Uint64(field protowire.Number) (uint64, bool) {
	vs, ok := m.varint[field]
	if !ok || len(vs) == 0 {
		return 0, false
	}
	return vs[0], true
}

func (m *Message) Int64(field protowire.Number) (int64, bool) {
	v, ok := m.Uint64(field)
	return int64(v), ok
}

func (m *Message) Bool(field protowire.Number) (bool, bool) {
	v, ok := m.Uint64(field)
	return v != 0, ok
}

func (m *Message) Bytes(field protowire.Number) ([]byte, bool) {
	vs, ok := m.bytes[field]
	if !ok || len(vs) == 0 {
		return nil, false
	}
	return vs[0], true
}

func (m *Message) String(field protowire.Number) (string, bool) {
	b, ok := m.Bytes(field)
	if !ok {
		return "", false
	}
	return string(b), ok
}

// RepeatedBytes returns every occurrence of a length-delimited field, in
// wire order — used for repeated/nested messages.
func (m *Message) RepeatedBytes(field protowire.Number) [][]byte {
	return m.bytes[field]
}

// RepeatedUint64 returns every occurrence of a varint field, in wire order.
func (m *Message) RepeatedUint64(field protowire.Number) []uint64 {
	return m.varint[field]
}
