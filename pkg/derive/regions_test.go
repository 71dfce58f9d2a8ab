package derive

import (
	"slices"
	"testing"

	"github.com/sudorandom/latency-map/pkg/dataset"
	"github.com/sudorandom/latency-map/pkg/filter"
)

func TestConvexHull(t *testing.T) {
	tests := []struct {
		name string
		pts  []Point
		want []Point
	}{
		{
			name: "square with interior point",
			pts:  []Point{{0, 0}, {2, 0}, {1, 1}, {2, 2}, {0, 2}},
			want: []Point{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0}},
		},
		{
			name: "triangle with duplicates",
			pts:  []Point{{0, 0}, {1, 0}, {0, 1}, {1, 0}, {0, 0}},
			want: []Point{{0, 0}, {1, 0}, {0, 1}, {0, 0}},
		},
		{name: "two distinct points", pts: []Point{{0, 0}, {1, 1}, {1, 1}}},
		{name: "collinear", pts: []Point{{0, 0}, {1, 1}, {2, 2}}},
		{name: "empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConvexHull(tt.pts); !slices.Equal(got, tt.want) {
				t.Errorf("ConvexHull(%v) = %v; want %v", tt.pts, got, tt.want)
			}
		})
	}
}

func TestCentroid(t *testing.T) {
	got := Centroid([]Point{{0, 0}, {4, 0}, {4, 4}, {4, 4}})
	if got != (Point{3, 2}) {
		t.Errorf("Centroid() = %v; want [3 2]", got)
	}
	if got := Centroid(nil); got != (Point{}) {
		t.Errorf("Centroid(nil) = %v; want zero", got)
	}
}

func TestRegions(t *testing.T) {
	cat := testCatalog(t)
	rf := Regions(cat)

	// us-east-1 has the region plus Kraken and Ghost; Ghost has no coordinates,
	// so only two distinct points remain and no hull is built.
	if len(rf.Polygons.Features) != 0 {
		t.Errorf("polygons = %d; want 0", len(rf.Polygons.Features))
	}
	if len(rf.Markers.Features) != 3 {
		t.Fatalf("markers = %d; want 3 (nowhere-1 has no points)", len(rf.Markers.Features))
	}

	info, ok := rf.Info("AWS-us-east-1-marker-N. Virginia")
	if !ok {
		t.Fatalf("Info(AWS us-east-1 marker) not found")
	}
	if info.ServerCount != 2 || info.Color != "#3B82F6" {
		t.Errorf("info = %+v; want 2 servers, colour #3B82F6", info)
	}
	want := []RegionExchange{
		{Name: "Kraken", City: "Ashburn", Provider: "AWS"},
		{Name: "Ghost", City: "us-east-1", Provider: "GCP"},
	}
	if !slices.Equal(info.Exchanges, want) {
		t.Errorf("exchanges = %+v; want %+v", info.Exchanges, want)
	}

	m := rf.Markers.Features[0]
	wantCentroid := []float64{(-77.4874 + -77.53) / 2, (39.0438 + 39.02) / 2}
	if !slices.Equal(m.Geometry.Point, wantCentroid) {
		t.Errorf("centroid = %v; want %v", m.Geometry.Point, wantCentroid)
	}

	gcp, ok := rf.Info("GCP-europe-west2-marker-London")
	if !ok || gcp.Color != "#8B5CF6" || gcp.ServerCount != 0 || gcp.Exchanges == nil {
		t.Errorf("GCP info = (%+v, %v); want purple, 0 servers, empty list", gcp, ok)
	}
}

func TestRegionsHullFromDefaultData(t *testing.T) {
	cat, err := dataset.Default()
	if err != nil {
		t.Fatalf("Default() failed: %v", err)
	}
	rf := Regions(cat)
	info, ok := rf.Info("AWS-ap-northeast-1-poly-Tokyo")
	if !ok {
		t.Fatalf("no hull for AWS ap-northeast-1")
	}
	if info.ServerCount != 2 {
		t.Errorf("ap-northeast-1 serverCount = %d; want 2", info.ServerCount)
	}
	for _, f := range rf.Polygons.Features {
		ring := f.Geometry.Polygon[0]
		if !slices.Equal(ring[0], ring[len(ring)-1]) {
			t.Errorf("polygon %v ring is not closed", f.ID)
		}
	}
}

func TestMarkers(t *testing.T) {
	cat := testCatalog(t)
	c := criteria([]string{"Binance", "Ghost"}, []string{"GCP"}, 0, 300)
	m := Markers(cat, c)
	if len(m.Exchanges.Features) != 1 {
		t.Fatalf("exchange markers = %d; want 1 (Ghost has no coordinates)", len(m.Exchanges.Features))
	}
	f := m.Exchanges.Features[0]
	if f.Properties["countryCode"] != "JP" || f.Properties["color"] != "blue" {
		t.Errorf("Binance marker properties = %v", f.Properties)
	}
	if len(m.Servers.Features) != 1 || m.Servers.Features[0].Properties["code"] != "europe-west2" {
		t.Errorf("server markers = %d; want GCP europe-west2 only", len(m.Servers.Features))
	}
}

func TestStats(t *testing.T) {
	samples := []dataset.LatencySample{
		{Exchange: "Binance", Provider: "AWS", RegionCode: "us-east-1", LatencyMs: 10},
		{Exchange: "Binance", Provider: "GCP", RegionCode: "europe-west2", LatencyMs: 25},
		{Exchange: "Kraken", Provider: "AWS", RegionCode: "ap-northeast-1", LatencyMs: 200},
		{Exchange: "OKX", Provider: "Azure", RegionCode: "eastasia", LatencyMs: 400},
	}
	tests := []struct {
		name string
		c    filter.Criteria
		want Summary
	}{
		{
			name: "empty selections do not filter",
			c:    criteria(nil, nil, 0, 300),
			want: Summary{Count: 3, Avg: 78, Min: 10, Max: 200, VisibleExchanges: 2},
		},
		{
			name: "provider selection",
			c:    criteria(nil, []string{"AWS"}, 0, 1000),
			want: Summary{Count: 2, Avg: 105, Min: 10, Max: 200, VisibleExchanges: 2},
		},
		{
			name: "query matches region code case-insensitively",
			c:    criteria(nil, nil, 0, 1000).WithQuery("EUROPE"),
			want: Summary{Count: 1, Avg: 25, Min: 25, Max: 25, VisibleExchanges: 1},
		},
		{
			name: "query matches exchange",
			c:    criteria(nil, nil, 0, 1000).WithQuery("krak"),
			want: Summary{Count: 1, Avg: 200, Min: 200, Max: 200, VisibleExchanges: 1},
		},
		{
			name: "nothing matches",
			c:    criteria([]string{"Bybit"}, nil, 0, 1000),
			want: Summary{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Stats(samples, tt.c); got != tt.want {
				t.Errorf("Stats() = %+v; want %+v", got, tt.want)
			}
		})
	}
}

func TestLegend(t *testing.T) {
	l := NewLegend()
	if len(l.Providers) != 3 || l.Providers[1].Color != "red" {
		t.Errorf("legend providers = %+v", l.Providers)
	}
	if len(l.Latencies) != 3 || l.Latencies[2].Color != "red" {
		t.Errorf("legend latencies = %+v", l.Latencies)
	}
}
