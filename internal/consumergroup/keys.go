package consumergroup

import (
	"encoding/binary"
)

// Key prefixes mirroring the eventlog keyspace style:
// - pg/grp/{group}/cursor
// - pg/grp/{group}/claim/{seq_be8}
// - pg/grp/{group}/claim_idx/{exp_be8}{seq_be8}

func groupPrefix(group string) []byte {
	k := make([]byte, 0, 7+len(group)+1)
	k = append(k, "pg/grp/"...)
	k = append(k, group...)
	k = append(k, '/')
	return k
}

func keyCursor(group string) []byte {
	return append(groupPrefix(group), "cursor"...)
}

func keyClaim(group string, seq uint64) []byte {
	k := append(groupPrefix(group), "claim/"...)
	return appendBE8(k, seq)
}

func claimIdxPrefix(group string) []byte {
	return append(groupPrefix(group), "claim_idx/"...)
}

func keyClaimIdx(group string, expiryMs int64, seq uint64) []byte {
	k := claimIdxPrefix(group)
	k = appendBE8(k, uint64(expiryMs))
	return appendBE8(k, seq)
}

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// upperBound returns an exclusive scan bound just past every key with the
// given prefix.
func upperBound(prefix []byte) []byte {
	return append(append([]byte{}, prefix...), 0xFF)
}

// claim value encoding: expiry_ms(8B BE) | deliveries(4B BE) | consumer

func encodeClaim(expiryMs int64, deliveries uint32, consumer string) []byte {
	out := make([]byte, 12, 12+len(consumer))
	binary.BigEndian.PutUint64(out[0:8], uint64(expiryMs))
	binary.BigEndian.PutUint32(out[8:12], deliveries)
	return append(out, consumer...)
}

func decodeClaim(b []byte) (expiryMs int64, deliveries uint32, consumer string, ok bool) {
	if len(b) < 12 {
		return 0, 0, "", false
	}
	expiryMs = int64(binary.BigEndian.Uint64(b[0:8]))
	deliveries = binary.BigEndian.Uint32(b[8:12])
	consumer = string(b[12:])
	return expiryMs, deliveries, consumer, true
}
