package wal

import (
	"bytes"
	"testing"
)

func TestRecordEncodeDecode(t *testing.T) {
	rec := &Record{
		Serial:    42,
		Timestamp: 1234567890,
		Payload:   []byte(`{"kind":"put","doc":"doc::1"}`),
	}

	data := rec.Encode()
	if len(data) != rec.Size() {
		t.Fatalf("encoded size %d, Size() says %d", len(data), rec.Size())
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Serial != rec.Serial {
		t.Errorf("serial: expected %d, got %d", rec.Serial, decoded.Serial)
	}
	if decoded.Timestamp != rec.Timestamp {
		t.Errorf("timestamp: expected %d, got %d", rec.Timestamp, decoded.Timestamp)
	}
	if !bytes.Equal(decoded.Payload, rec.Payload) {
		t.Errorf("payload: expected %q, got %q", rec.Payload, decoded.Payload)
	}
}

func TestRecordEmptyPayload(t *testing.T) {
	rec := &Record{Serial: 1, Timestamp: 100}
	decoded, err := Decode(rec.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded.Payload) != 0 {
		t.Errorf("expected empty payload, got %d bytes", len(decoded.Payload))
	}
}

func TestDecodeRejectsCorruptedRecord(t *testing.T) {
	rec := &Record{Serial: 7, Timestamp: 99, Payload: []byte("payload")}
	data := rec.Encode()

	// Flip a payload byte: the CRC must catch it
	data[len(data)-1] ^= 0xff
	if _, err := Decode(data); err == nil {
		t.Fatal("expected CRC mismatch error for corrupted payload")
	}

	// Flip a header byte
	data = rec.Encode()
	data[8] ^= 0xff
	if _, err := Decode(data); err == nil {
		t.Fatal("expected CRC mismatch error for corrupted header")
	}
}

func TestDecodeRejectsShortData(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated record")
	}
}

func TestDecodeRejectsLengthMismatch(t *testing.T) {
	rec := &Record{Serial: 3, Timestamp: 5, Payload: []byte("abc")}
	data := rec.Encode()
	// Chop off the payload tail: framing length no longer matches
	if _, err := Decode(data[:len(data)-1]); err == nil {
		t.Fatal("expected error for record with mismatched length")
	}
}
