package exit

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Record --------------------

// Record is one outbox entry. Seq is the key, the rest is the value.
type Record struct {
	Seq         uint64
	State       State
	Retries     uint32
	LastAttempt int64 // unix nanos, 0 before the first send
	Payload     []byte
}

const headerLen = 1 + 4 + 8 + 4

var ErrCorrupt = errors.New("exit wal: corrupt record")

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// value layout: [state:1][retries:4][lastAttempt:8][crc32(payload):4][payload]
func encodeRecord(r Record) []byte {
	buf := make([]byte, headerLen+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	binary.BigEndian.PutUint32(buf[13:17], crc32.Checksum(r.Payload, castagnoli))
	copy(buf[headerLen:], r.Payload)
	return buf
}

// decodeRecord copies the payload out of b, which pebble may reuse.
func decodeRecord(seq uint64, b []byte) (Record, error) {
	if len(b) < headerLen {
		return Record{}, fmt.Errorf("%w: seq %d has %d bytes", ErrCorrupt, seq, len(b))
	}
	payload := append([]byte(nil), b[headerLen:]...)
	if crc32.Checksum(payload, castagnoli) != binary.BigEndian.Uint32(b[13:17]) {
		return Record{}, fmt.Errorf("%w: seq %d checksum mismatch", ErrCorrupt, seq)
	}
	return Record{
		Seq:         seq,
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     payload,
	}, nil
}
