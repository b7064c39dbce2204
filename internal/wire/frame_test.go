package wire

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	f := Frame{Code: MsgInit, Flag: FlagREQ, Ref: 7, Payload: []byte("hello")}
	if err := WriteFrame(&buf, f); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Code != f.Code || got.Flag != f.Flag || got.Ref != f.Ref || !bytes.Equal(got.Payload, f.Payload) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, f)
	}
}

func TestFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	f := Frame{Code: MsgClose, Flag: FlagCNF, Ref: 1}
	if err := WriteFrame(&buf, f); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(got.Payload) != 0 {
		t.Fatalf("expected empty payload, got %v", got.Payload)
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF}) // length prefix far larger than remaining data
	if _, err := ReadFrame(&buf); err == nil {
		t.Fatalf("expected error for truncated/oversized frame")
	}
}

func TestMultipleFramesSequential(t *testing.T) {
	var buf bytes.Buffer
	frames := []Frame{
		{Code: MsgEnum, Flag: FlagREQ, Ref: 1},
		{Code: MsgEnum, Flag: FlagCNF, Ref: 1, Payload: []byte{1, 2, 3}},
		{Code: MsgWatch, Flag: FlagIND, Ref: 0, Payload: []byte{9}},
	}
	for _, f := range frames {
		if err := WriteFrame(&buf, f); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	for _, want := range frames {
		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if got.Code != want.Code || got.Flag != want.Flag || got.Ref != want.Ref || !bytes.Equal(got.Payload, want.Payload) {
			t.Fatalf("got %+v want %+v", got, want)
		}
	}
}
