package history

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sudorandom/latency-map/pkg/dataset"
)

func TestRangeResolution(t *testing.T) {
	tests := []struct {
		r         Range
		wantStep  time.Duration
		wantCount int
	}{
		{Range1h, time.Minute, 60},
		{Range24h, 5 * time.Minute, 288},
		{Range7d, time.Hour, 168},
		{Range30d, 6 * time.Hour, 120},
	}
	for _, tt := range tests {
		step, count, err := tt.r.Resolution()
		if err != nil || step != tt.wantStep || count != tt.wantCount {
			t.Errorf("%s.Resolution() = (%s, %d, %v); want (%s, %d)", tt.r, step, count, err, tt.wantStep, tt.wantCount)
		}
	}
	if _, err := ParseRange("90d"); !errors.Is(err, ErrUnknownRange) {
		t.Errorf("ParseRange(90d) error = %v; want ErrUnknownRange", err)
	}
}

func TestGenerate(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewSource(42))
	for _, base := range []float64{2, 50, 180} {
		pts, err := Generate(base, Range24h, now, rng)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if len(pts) != 288 {
			t.Fatalf("Generate(%v) = %d points; want 288", base, len(pts))
		}
		if !pts[0].Time.Equal(now.Add(-288 * 5 * time.Minute)) {
			t.Errorf("first point at %s; want %s", pts[0].Time, now.Add(-288*5*time.Minute))
		}
		if !pts[len(pts)-1].Time.Equal(now.Add(-5 * time.Minute)) {
			t.Errorf("last point at %s; want %s", pts[len(pts)-1].Time, now.Add(-5*time.Minute))
		}
		for _, p := range pts {
			if p.LatencyMs < 5 {
				t.Fatalf("point %v below the 5ms floor", p.LatencyMs)
			}
			if p.LatencyMs > max(5, base*3.1+1) {
				t.Fatalf("point %v above base %v plus jitter and spike", p.LatencyMs, base)
			}
			if p.LatencyMs != float64(int64(p.LatencyMs)) {
				t.Fatalf("point %v is not rounded", p.LatencyMs)
			}
		}
	}
}

func TestComputeStats(t *testing.T) {
	pts := []Point{{LatencyMs: 10}, {LatencyMs: 20}, {LatencyMs: 31}}
	if got := ComputeStats(pts); got != (Stats{Min: 10, Max: 31, Avg: 20}) {
		t.Errorf("ComputeStats() = %+v; want {10 31 20}", got)
	}
	if got := ComputeStats(nil); got != (Stats{}) {
		t.Errorf("ComputeStats(nil) = %+v; want zero", got)
	}
}

func TestPairs(t *testing.T) {
	samples := []dataset.LatencySample{
		{Exchange: "Binance", RegionCode: "us-east-1", LatencyMs: 45},
		{Exchange: "Binance", RegionCode: "us-east-1", LatencyMs: 99},
		{Exchange: "OKX", RegionCode: "asia-east2", LatencyMs: 2},
	}
	got := Pairs(samples)
	if len(got) != 2 || got[0].Key != "Binance ↔ us-east-1" || got[0].BaseLatency != 45 {
		t.Errorf("Pairs() = %+v", got)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	pts := []Point{
		{Time: time.UnixMilli(1700000000000), LatencyMs: 42},
		{Time: time.UnixMilli(1700000060000), LatencyMs: 43.5},
	}
	if err := WriteCSV(&buf, pts); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	want := "timestamp,latency_ms\n1700000000000,42\n1700000060000,43.5\n"
	if buf.String() != want {
		t.Errorf("WriteCSV() = %q; want %q", buf.String(), want)
	}
}

func TestWriteParquet(t *testing.T) {
	var buf bytes.Buffer
	pts := []Point{{Time: time.UnixMilli(1700000000000), LatencyMs: 42}}
	if err := WriteParquet(&buf, "Binance ↔ us-east-1", pts); err != nil {
		t.Fatalf("WriteParquet failed: %v", err)
	}
	b := buf.Bytes()
	if len(b) < 8 || string(b[:4]) != "PAR1" || string(b[len(b)-4:]) != "PAR1" {
		t.Errorf("WriteParquet output is not a parquet file (%d bytes)", len(b))
	}
}

func TestRenderChart(t *testing.T) {
	var buf bytes.Buffer
	pts, _ := Generate(40, Range1h, time.Now(), rand.New(rand.NewSource(1)))
	if err := RenderChart(&buf, "Binance ↔ us-east-1", pts, 640, 320); err != nil {
		t.Fatalf("RenderChart failed: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Errorf("RenderChart output is not a PNG")
	}
	if err := RenderChart(&buf, "empty", nil, 640, 320); err == nil {
		t.Errorf("RenderChart(nil) succeeded; want error")
	}
}

func TestStoreAndService(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "history-store-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			t.Logf("Error removing temp dir: %v", err)
		}
	}()

	store, err := OpenStore(filepath.Join(tmpDir, "history.db"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			t.Logf("Error closing store: %v", err)
		}
	}()

	samples := []dataset.LatencySample{
		{Exchange: "Binance", RegionCode: "us-east-1", LatencyMs: 45},
		{Exchange: "Binance", RegionCode: "us-east-10", LatencyMs: 99},
	}
	svc := NewService(store, samples, 1)
	pair, ok := svc.Pair("Binance ↔ us-east-1")
	if !ok {
		t.Fatalf("Pair not found")
	}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	pts, recorded, err := svc.Series(pair, Range1h, now)
	if err != nil || recorded || len(pts) != 60 {
		t.Fatalf("Series() before recording = (%d points, recorded=%v, %v); want 60 synthetic", len(pts), recorded, err)
	}

	svc.Record(now.Add(-2*time.Hour), samples)
	svc.Record(now.Add(-20*time.Minute), []dataset.LatencySample{{Exchange: "Binance", RegionCode: "us-east-1", LatencyMs: 50}})
	svc.Record(now.Add(-10*time.Minute), []dataset.LatencySample{{Exchange: "Binance", RegionCode: "us-east-1", LatencyMs: 55}})

	pts, recorded, err = svc.Series(pair, Range1h, now)
	if err != nil || !recorded {
		t.Fatalf("Series() after recording = (recorded=%v, %v); want recorded", recorded, err)
	}
	if len(pts) != 2 || pts[0].LatencyMs != 50 || pts[1].LatencyMs != 55 {
		t.Errorf("Series() = %+v; want [50 55] inside the last hour", pts)
	}

	other, err := store.Series("Binance ↔ us-east-10", time.Time{})
	if err != nil || len(other) != 1 || other[0].LatencyMs != 99 {
		t.Errorf("Series(us-east-10) = (%+v, %v); want one point of 99", other, err)
	}
	if !strings.Contains(pair.Key, "↔") {
		t.Errorf("pair key %q lacks separator", pair.Key)
	}
}

func TestDownsample(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	points := []Point{
		{Time: now.Add(-2 * time.Hour), LatencyMs: 900},
		{Time: now.Add(-59*time.Minute - 30*time.Second), LatencyMs: 40},
		{Time: now.Add(-59*time.Minute - 10*time.Second), LatencyMs: 50},
		{Time: now.Add(-30 * time.Second), LatencyMs: 60},
		{Time: now, LatencyMs: 70},
	}
	got, err := Downsample(points, Range1h, now)
	if err != nil {
		t.Fatalf("Downsample failed: %v", err)
	}
	want := []Point{
		{Time: now.Add(-time.Hour), LatencyMs: 45},
		{Time: now.Add(-time.Minute), LatencyMs: 65},
	}
	if len(got) != len(want) {
		t.Fatalf("Downsample() = %+v; want %+v", got, want)
	}
	for i := range want {
		if !got[i].Time.Equal(want[i].Time) || got[i].LatencyMs != want[i].LatencyMs {
			t.Errorf("Downsample()[%d] = %+v; want %+v", i, got[i], want[i])
		}
	}

	if _, err := Downsample(points, Range("90d"), now); !errors.Is(err, ErrUnknownRange) {
		t.Errorf("Downsample(90d) error = %v; want ErrUnknownRange", err)
	}
}

func TestStoreRetentionAndResolution(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			t.Logf("Error closing store: %v", err)
		}
	}()
	if store.Retention < Range30d.Span() {
		t.Errorf("Retention = %s; want at least %s", store.Retention, Range30d.Span())
	}

	samples := []dataset.LatencySample{{Exchange: "OKX", RegionCode: "ap-east-1", LatencyMs: 45}}
	svc := NewService(store, samples, 1)
	pair, _ := svc.Pair("OKX ↔ ap-east-1")

	now := time.Now().Truncate(time.Minute)
	for i := range 10 {
		svc.Record(now.Add(-60*24*time.Hour+time.Duration(i)*7*time.Second), samples)
	}
	const polls = 514
	for i := range polls {
		svc.Record(now.Add(-time.Duration(i)*7*time.Second), samples)
	}

	_, count, _ := Range1h.Resolution()
	pts, recorded, err := svc.Series(pair, Range1h, now)
	if err != nil || !recorded {
		t.Fatalf("Series() = (recorded=%v, %v); want recorded", recorded, err)
	}
	if len(pts) == 0 || len(pts) > count {
		t.Errorf("Series(1h) returned %d points; want between 1 and %d", len(pts), count)
	}
	for _, p := range pts {
		if p.LatencyMs != 45 {
			t.Errorf("Series(1h) point %+v; want the 45ms mean", p)
		}
		if p.Time.Before(now.Add(-Range1h.Span())) {
			t.Errorf("Series(1h) point %v is older than the range", p.Time)
		}
	}

	minExpiry := uint64(time.Now().Add(store.Retention - time.Minute).Unix())
	maxExpiry := uint64(time.Now().Add(store.Retention + time.Minute).Unix())
	var n int
	err = store.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
			if exp := it.Item().ExpiresAt(); exp < minExpiry || exp > maxExpiry {
				t.Errorf("key %q expires at %d; want within a minute of %d", it.Item().Key(), exp, minExpiry+60)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if n != polls+10 {
		t.Errorf("store holds %d points; want %d", n, polls+10)
	}
}
