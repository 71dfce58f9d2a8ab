package history

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sudorandom/latency-map/pkg/dataset"
)

// DefaultRetention keeps points for a day longer than the longest range.
var DefaultRetention = Range30d.Span() + 24*time.Hour

// Store persists observed latencies per pair. Keys are the pair key, a '/'
// and the big-endian unix millisecond timestamp, so a prefix scan returns a
// pair's points in time order. Points expire Retention after they are written;
// zero keeps them forever.
type Store struct {
	db        *badger.DB
	Retention time.Duration
}

func OpenStore(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history store %s: %w", path, err)
	}
	return &Store{db: db, Retention: DefaultRetention}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func pointKey(pair string, t time.Time) []byte {
	key := make([]byte, len(pair)+1+8)
	copy(key, pair)
	key[len(pair)] = '/'
	binary.BigEndian.PutUint64(key[len(pair)+1:], uint64(max(t.UnixMilli(), 0)))
	return key
}

func encodeValue(ms float64) []byte {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, math.Float64bits(ms))
	return v
}

// Record writes one point per distinct pair of samples at time at.
func (s *Store) Record(at time.Time, samples []dataset.LatencySample) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	seen := make(map[string]struct{}, len(samples))
	for _, smp := range samples {
		pair := PairKey(smp.Exchange, smp.RegionCode)
		if _, dup := seen[pair]; dup {
			continue
		}
		seen[pair] = struct{}{}
		e := badger.NewEntry(pointKey(pair, at), encodeValue(smp.LatencyMs))
		if s.Retention > 0 {
			e = e.WithTTL(s.Retention)
		}
		if err := wb.SetEntry(e); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// Series returns the recorded points of pair at or after since, oldest first.
func (s *Store) Series(pair string, since time.Time) ([]Point, error) {
	prefix := append([]byte(pair), '/')
	var out []Point
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(pointKey(pair, since)); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			k := item.Key()
			if len(k) != len(prefix)+8 {
				continue
			}
			ts := time.UnixMilli(int64(binary.BigEndian.Uint64(k[len(prefix):])))
			err := item.Value(func(v []byte) error {
				if len(v) != 8 {
					return errors.New("corrupt history value")
				}
				out = append(out, Point{Time: ts, LatencyMs: math.Float64frombits(binary.BigEndian.Uint64(v))})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}
