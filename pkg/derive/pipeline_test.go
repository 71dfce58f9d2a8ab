package derive

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"slices"
	"testing"

	"github.com/paulmach/go.geojson"
	"github.com/sudorandom/latency-map/pkg/dataset"
	"github.com/sudorandom/latency-map/pkg/filter"
)

func testCatalog(t *testing.T, samples ...dataset.LatencySample) *dataset.Catalog {
	t.Helper()
	exchanges := []dataset.Exchange{
		{Name: "Binance", Provider: "AWS", Region: "ap-northeast-1", Coords: dataset.Coordinates{139.75, 35.68}, City: "Tokyo", Country: "Japan"},
		{Name: "Kraken", Provider: "AWS", Region: "us-east-1", Coords: dataset.Coordinates{-77.53, 39.02}, City: "Ashburn", Country: "United States"},
		{Name: "Ghost", Provider: "GCP", Region: "us-east-1"},
	}
	clouds := []dataset.CloudRegion{
		{Provider: "AWS", Regions: []dataset.Region{
			{Code: "us-east-1", Name: "N. Virginia", Coords: dataset.Coordinates{-77.4874, 39.0438}},
			{Code: "eu-west-1", Name: "Ireland", Coords: dataset.Coordinates{-6.26, 53.35}},
			{Code: "nowhere-1", Name: "Nowhere"},
		}},
		{Provider: "GCP", Regions: []dataset.Region{
			{Code: "europe-west2", Name: "London", Coords: dataset.Coordinates{-0.1276, 51.5072}},
		}},
	}
	cat, err := dataset.NewCatalog(exchanges, clouds, samples)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}
	return cat
}

func criteria(exchanges, providers []string, lo, hi float64) filter.Criteria {
	c := filter.DefaultCriteria()
	c.SelectedExchanges = exchanges
	c.SelectedProviders = providers
	c.LatencyRange = [2]float64{lo, hi}
	return c
}

func TestClassify(t *testing.T) {
	tests := []struct {
		ms   float64
		want Bucket
	}{
		{0, Low},
		{59, Low},
		{59.99, Low},
		{60, Medium},
		{119, Medium},
		{119.5, Medium},
		{120, High},
		{900, High},
	}
	for _, tt := range tests {
		if got := Classify(tt.ms); got != tt.want {
			t.Errorf("Classify(%v) = %s; want %s", tt.ms, got, tt.want)
		}
	}
}

func TestOverlay(t *testing.T) {
	base := []dataset.LatencySample{{LatencyMs: 1}, {LatencyMs: 2}, {LatencyMs: 3}, {LatencyMs: 4}}
	tests := []struct {
		live []float64
		want []float64
	}{
		{nil, []float64{1, 2, 3, 4}},
		{[]float64{10}, []float64{10, 2, 3, 4}},
		{[]float64{10, 20, 30}, []float64{10, 20, 30, 4}},
		{[]float64{10, 20, 30, 40, 50}, []float64{10, 20, 30, 40}},
	}
	for _, tt := range tests {
		got := Overlay(base, tt.live)
		var ms []float64
		for _, s := range got {
			ms = append(ms, s.LatencyMs)
		}
		if !slices.Equal(ms, tt.want) {
			t.Errorf("Overlay(%v) = %v; want %v", tt.live, ms, tt.want)
		}
	}
	if base[0].LatencyMs != 1 {
		t.Errorf("Overlay mutated its input")
	}
}

func TestLinesSingleLowFeature(t *testing.T) {
	cat := testCatalog(t, dataset.LatencySample{Exchange: "Binance", Provider: "AWS", RegionCode: "us-east-1", LatencyMs: 45})
	got := Lines(cat, nil, criteria([]string{"Binance"}, []string{"AWS"}, 0, 300))

	if len(got.Low.Features) != 1 || len(got.Medium.Features) != 0 || len(got.High.Features) != 0 {
		t.Fatalf("Lines() = %d/%d/%d; want 1/0/0", len(got.Low.Features), len(got.Medium.Features), len(got.High.Features))
	}
	f := got.Low.Features[0]
	if !f.Geometry.IsLineString() {
		t.Fatalf("feature geometry = %s; want LineString", f.Geometry.Type)
	}
	want := [][]float64{{139.75, 35.68}, {-77.4874, 39.0438}}
	for i := range want {
		if !slices.Equal(f.Geometry.LineString[i], want[i]) {
			t.Errorf("coordinate %d = %v; want %v", i, f.Geometry.LineString[i], want[i])
		}
	}
	if f.Properties["latency"] != 45.0 || f.Properties["color"] != "green" {
		t.Errorf("properties = %v; want latency 45, color green", f.Properties)
	}
}

func TestLinesEmptyProvidersEmitsNothing(t *testing.T) {
	cat := testCatalog(t, dataset.LatencySample{Exchange: "Binance", Provider: "AWS", RegionCode: "us-east-1", LatencyMs: 45})
	got := Lines(cat, nil, criteria([]string{"Binance"}, []string{}, 0, 300))
	if n := got.Len(); n != 0 {
		t.Errorf("Lines() with no providers = %d features; want 0", n)
	}
}

func TestLinesLiveOverlayReclassifies(t *testing.T) {
	cat := testCatalog(t, dataset.LatencySample{Exchange: "Binance", Provider: "AWS", RegionCode: "us-east-1", LatencyMs: 45})
	c := criteria([]string{"Binance"}, []string{"AWS"}, 0, 300)

	tests := []struct {
		live []float64
		want Bucket
	}{
		{[]float64{90}, Medium},
		{[]float64{200}, High},
	}
	for _, tt := range tests {
		got := Lines(cat, tt.live, c)
		fc := got.For(tt.want)
		if got.Len() != 1 || len(fc.Features) != 1 {
			t.Errorf("Lines(live=%v): want exactly one %s feature, got %d total", tt.live, tt.want, got.Len())
			continue
		}
		if fc.Features[0].Properties["latency"] != tt.live[0] {
			t.Errorf("Lines(live=%v) latency = %v; want %v", tt.live, fc.Features[0].Properties["latency"], tt.live[0])
		}
	}
}

func TestLinesDropsUnresolved(t *testing.T) {
	cat := testCatalog(t,
		dataset.LatencySample{Exchange: "Binance", Provider: "AWS", RegionCode: "us-east-1", LatencyMs: 10},
		dataset.LatencySample{Exchange: "Unknown", Provider: "AWS", RegionCode: "us-east-1", LatencyMs: 10},
		dataset.LatencySample{Exchange: "Binance", Provider: "AWS", RegionCode: "mars-1", LatencyMs: 10},
		dataset.LatencySample{Exchange: "Binance", Provider: "AWS", RegionCode: "nowhere-1", LatencyMs: 10},
		dataset.LatencySample{Exchange: "Ghost", Provider: "GCP", RegionCode: "europe-west2", LatencyMs: 10},
		dataset.LatencySample{Exchange: "Kraken", Provider: "AWS", RegionCode: "eu-west-1", LatencyMs: 10},
	)
	c := criteria([]string{"Binance", "Unknown", "Ghost"}, []string{"AWS", "GCP"}, 0, 300)
	if n := Lines(cat, nil, c).Len(); n != 1 {
		t.Errorf("Lines() = %d features; want 1", n)
	}
}

func TestLinesHiddenRealtimeLayer(t *testing.T) {
	cat := testCatalog(t, dataset.LatencySample{Exchange: "Binance", Provider: "AWS", RegionCode: "us-east-1", LatencyMs: 45})
	c := criteria([]string{"Binance"}, []string{"AWS"}, 0, 300).WithLayer(filter.LayerRealtime, false)
	if n := Lines(cat, nil, c).Len(); n != 0 {
		t.Errorf("Lines() with realtime hidden = %d features; want 0", n)
	}
}

func allFeatures(b Buckets) []*geojson.Feature {
	var out []*geojson.Feature
	for _, bucket := range AllBuckets {
		out = append(out, b.For(bucket).Features...)
	}
	return out
}

func TestLinesRespectLatencyRange(t *testing.T) {
	cat, err := dataset.Default()
	if err != nil {
		t.Fatalf("Default() failed: %v", err)
	}
	var names []string
	for _, e := range cat.Exchanges() {
		names = append(names, e.Name)
	}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		lo := float64(rng.Intn(300))
		hi := lo + float64(rng.Intn(300))
		live := make([]float64, rng.Intn(len(cat.Samples())+5))
		for j := range live {
			live[j] = rng.Float64() * 400
		}
		c := criteria(names, []string{"AWS", "GCP", "Azure"}, lo, hi)
		for _, f := range allFeatures(Lines(cat, live, c)) {
			ms := f.Properties["latency"].(float64)
			if ms < lo || ms > hi {
				t.Fatalf("feature latency %v outside [%v, %v]", ms, lo, hi)
			}
			if Classify(ms) != Bucket(f.Properties["bucket"].(string)) {
				t.Fatalf("feature latency %v in bucket %v", ms, f.Properties["bucket"])
			}
		}
	}
}

func TestLinesDeterministic(t *testing.T) {
	cat, err := dataset.Default()
	if err != nil {
		t.Fatalf("Default() failed: %v", err)
	}
	live := []float64{12, 250, 61, 119, 120, 59}
	c := filter.DefaultCriteria()

	a, err := json.Marshal(Lines(cat, live, c))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	b, _ := json.Marshal(Lines(cat, live, c))
	if !bytes.Equal(a, b) {
		t.Errorf("Lines() is not deterministic:\n%s\n%s", a, b)
	}

	ra, _ := json.Marshal(Regions(cat))
	rb, _ := json.Marshal(Regions(cat))
	if !bytes.Equal(ra, rb) {
		t.Errorf("Regions() is not deterministic")
	}
}
