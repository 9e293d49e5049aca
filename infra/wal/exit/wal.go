package exit

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"matchbook/domain/events"
)

const keyPrefix = "evt/"

var (
	lowerBound = []byte(keyPrefix)
	upperBound = []byte(keyPrefix + "~")
)

var ErrNotFound = errors.New("exit wal: record not found")

// ExitWAL is a durable outbox of committed engine events. Producers append
// NEW records; the broadcaster moves them through SENT to ACKED and
// truncates what has been acknowledged.
type ExitWAL struct {
	db  *pebble.DB
	seq atomic.Uint64

	// serialises appends, so the visible records are always a prefix of
	// the sequence, and read-modify-write state changes
	mu  sync.Mutex
	now func() time.Time
}

func Open(dir string) (*ExitWAL, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("exit wal: open %s: %w", dir, err)
	}
	w := &ExitWAL{db: db, now: time.Now}

	last, err := w.lastSeq()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	w.seq.Store(last)
	return w, nil
}

func (w *ExitWAL) Close() error {
	return w.db.Close()
}

// -------------------- API --------------------

// Append stores payload as a NEW record and returns its sequence number.
// A record is readable before any later one is.
func (w *ExitWAL) Append(payload []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	seq := w.seq.Load() + 1
	rec := Record{Seq: seq, State: StateNew, Payload: payload}
	if err := w.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync); err != nil {
		return 0, fmt.Errorf("exit wal: append %d: %w", seq, err)
	}
	w.seq.Store(seq)
	return seq, nil
}

// Emit implements events.Sink.
func (w *ExitWAL) Emit(e events.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("exit wal: encode %s: %w", e.Type, err)
	}
	_, err = w.Append(payload)
	return err
}

func (w *ExitWAL) Get(seq uint64) (Record, error) {
	val, closer, err := w.db.Get(keyFor(seq))
	if errors.Is(err, pebble.ErrNotFound) {
		return Record{}, fmt.Errorf("%w: %d", ErrNotFound, seq)
	}
	if err != nil {
		return Record{}, err
	}
	defer closer.Close()
	return decodeRecord(seq, val)
}

// MarkSent records a delivery attempt.
func (w *ExitWAL) MarkSent(seq uint64) error {
	return w.update(seq, func(r *Record) {
		r.State = StateSent
		r.Retries++
		r.LastAttempt = w.now().UnixNano()
	})
}

func (w *ExitWAL) MarkAcked(seq uint64) error {
	return w.update(seq, func(r *Record) { r.State = StateAcked })
}

// MarkFailed parks a record that exhausted its retries.
func (w *ExitWAL) MarkFailed(seq uint64) error {
	return w.update(seq, func(r *Record) { r.State = StateFailed })
}

func (w *ExitWAL) update(seq uint64, fn func(*Record)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	rec, err := w.Get(seq)
	if err != nil {
		return err
	}
	fn(&rec)
	return w.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync)
}

// -------------------- Scan --------------------

// ScanByState visits records in the given state in sequence order.
func (w *ExitWAL) ScanByState(state State, fn func(Record) error) error {
	return w.scan(func(rec Record) error {
		if rec.State != state {
			return nil
		}
		return fn(rec)
	})
}

// ScanPending visits records not yet acknowledged: NEW, and SENT ones whose
// acknowledgement was lost.
func (w *ExitWAL) ScanPending(fn func(Record) error) error {
	return w.scan(func(rec Record) error {
		if rec.State != StateNew && rec.State != StateSent {
			return nil
		}
		return fn(rec)
	})
}

func (w *ExitWAL) scan(fn func(Record) error) error {
	iter, err := w.db.NewIter(&pebble.IterOptions{
		LowerBound: lowerBound,
		UpperBound: upperBound,
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		rec, err := decodeRecord(seq, iter.Value())
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// TruncateAcked deletes every ACKED record and reports how many went.
func (w *ExitWAL) TruncateAcked() (int, error) {
	var seqs []uint64
	if err := w.ScanByState(StateAcked, func(r Record) error {
		seqs = append(seqs, r.Seq)
		return nil
	}); err != nil {
		return 0, err
	}
	if len(seqs) == 0 {
		return 0, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	b := w.db.NewBatch()
	defer b.Close()
	for _, seq := range seqs {
		if err := b.Delete(keyFor(seq), nil); err != nil {
			return 0, err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("exit wal: truncate: %w", err)
	}
	return len(seqs), nil
}

// LastSeq is the highest sequence handed out so far.
func (w *ExitWAL) LastSeq() uint64 {
	return w.seq.Load()
}

// -------------------- Helpers --------------------

func (w *ExitWAL) lastSeq() (uint64, error) {
	iter, err := w.db.NewIter(&pebble.IterOptions{
		LowerBound: lowerBound,
		UpperBound: upperBound,
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseKey(iter.Key())
}

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, seq))
}

func parseKey(b []byte) (uint64, error) {
	if len(b) <= len(keyPrefix) || string(b[:len(keyPrefix)]) != keyPrefix {
		return 0, fmt.Errorf("%w: key %q", ErrCorrupt, b)
	}
	seq, err := strconv.ParseUint(string(b[len(keyPrefix):]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: key %q", ErrCorrupt, b)
	}
	return seq, nil
}
