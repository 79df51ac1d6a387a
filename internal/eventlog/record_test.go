package eventlog

import (
	"testing"
)

func TestRecordRoundTrip(t *testing.T) {
	header := EncodeHeader(1700000000000)
	payload := []byte(`{"sourceId":"srv-1"}`)
	enc := EncodeRecord(header, payload)
	dec, ok := DecodeRecord(enc)
	if !ok {
		t.Fatalf("decode failed")
	}
	ms, ok := HeaderTimestamp(dec.Header)
	if !ok || ms != 1700000000000 {
		t.Fatalf("header ts=%d ok=%v", ms, ok)
	}
	if string(dec.Payload) != string(payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	enc := EncodeRecord(EncodeHeader(1), []byte("payload"))

	// flip a payload byte
	bad := append([]byte(nil), enc...)
	bad[len(bad)-6] ^= 0xFF
	if _, ok := DecodeRecord(bad); ok {
		t.Fatalf("corrupt record decoded")
	}

	// truncated
	if _, ok := DecodeRecord(enc[:3]); ok {
		t.Fatalf("truncated record decoded")
	}

	// empty
	if _, ok := DecodeRecord(nil); ok {
		t.Fatalf("nil decoded")
	}
}

func TestHeaderTimestampShort(t *testing.T) {
	if _, ok := HeaderTimestamp([]byte{1, 2}); ok {
		t.Fatalf("short header accepted")
	}
}
