package recorder

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"net/url"
	"sync"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/vary/internal/storage/pebble"
)

// PebbleSink persists events as a per-experiment append-only log.
//
// Key layout (lexicographically sortable):
//   - evt/{experiment}/m           (last assigned sequence)
//   - evt/{experiment}/e/{seq_be8} (entries)
//
// The experiment segment is path-escaped so ids containing "/" stay within
// their own key range. Entries are framed as
// ts_ms(8B BE) | json payload | crc32c(ts|payload).
type PebbleSink struct {
	db *pebblestore.DB

	mu      sync.Mutex
	lastSeq map[string]uint64
}

// NewPebbleSink creates a sink over an open Pebble wrapper.
func NewPebbleSink(db *pebblestore.DB) *PebbleSink {
	return &PebbleSink{db: db, lastSeq: map[string]uint64{}}
}

func keyEventMeta(experimentID string) []byte {
	exp := url.PathEscape(experimentID)
	k := make([]byte, 0, 4+len(exp)+2)
	k = append(k, "evt/"...)
	k = append(k, exp...)
	k = append(k, "/m"...)
	return k
}

func keyEventEntry(experimentID string, seq uint64) []byte {
	exp := url.PathEscape(experimentID)
	k := make([]byte, 0, 4+len(exp)+3+8)
	k = append(k, "evt/"...)
	k = append(k, exp...)
	k = append(k, "/e/"...)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return append(k, b[:]...)
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func encodeEventRecord(tsMillis int64, payload []byte) []byte {
	out := make([]byte, 0, 8+len(payload)+4)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(tsMillis))
	out = append(out, ts[:]...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, out)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	return append(out, crcb[:]...)
}

func decodeEventRecord(b []byte) ([]byte, bool) {
	if len(b) < 8+4 {
		return nil, false
	}
	body := b[:len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	if crc32.Update(0, castagnoli, body) != expect {
		return nil, false
	}
	return body[8:], true
}

// Append implements Sink. The sequence and entry are committed atomically.
func (s *PebbleSink) Append(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.nextSeqLocked(ev.ExperimentID)
	if err != nil {
		return err
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(keyEventEntry(ev.ExperimentID, seq), encodeEventRecord(ev.Timestamp.UnixMilli(), payload), nil); err != nil {
		return err
	}
	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], seq)
	if err := b.Set(keyEventMeta(ev.ExperimentID), meta[:], nil); err != nil {
		return err
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return err
	}
	s.lastSeq[ev.ExperimentID] = seq
	return nil
}

// nextSeqLocked loads the persisted sequence on first use per experiment.
func (s *PebbleSink) nextSeqLocked(experimentID string) (uint64, error) {
	last, ok := s.lastSeq[experimentID]
	if !ok {
		if meta, err := s.db.Get(keyEventMeta(experimentID)); err == nil && len(meta) >= 8 {
			last = binary.BigEndian.Uint64(meta[:8])
		}
	}
	return last + 1, nil
}

// Read implements Sink, scanning entries in sequence order. Records failing
// the checksum are skipped.
func (s *PebbleSink) Read(_ context.Context, experimentID string) ([]Event, error) {
	low := keyEventEntry(experimentID, 0)
	high := keyEventEntry(experimentID, ^uint64(0))
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: append(high, 0x00)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var events []Event
	for valid := iter.First(); valid; valid = iter.Next() {
		payload, ok := decodeEventRecord(iter.Value())
		if !ok {
			continue
		}
		var ev Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
