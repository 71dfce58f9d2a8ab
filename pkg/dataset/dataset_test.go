package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default() failed: %v", err)
	}
	if len(c.Exchanges()) == 0 || len(c.CloudRegions()) == 0 || len(c.Samples()) == 0 {
		t.Fatalf("Default() returned an empty dataset")
	}
	ex, ok := c.Exchange("Binance")
	if !ok {
		t.Fatalf("Exchange(Binance) not found")
	}
	if ex.Provider != "AWS" || !ex.Coords.Valid() {
		t.Errorf("Exchange(Binance) = %+v; want AWS with coordinates", ex)
	}
	r, ok := c.Region("AWS", "us-east-1")
	if !ok || r.Name != "N. Virginia" {
		t.Errorf("Region(AWS, us-east-1) = (%+v, %v); want N. Virginia", r, ok)
	}
	if _, ok := c.Region("GCP", "us-east-1"); ok {
		t.Errorf("Region(GCP, us-east-1) found; region codes are per provider")
	}

	for _, s := range c.Samples() {
		if _, ok := c.Exchange(s.Exchange); !ok {
			t.Errorf("sample references unknown exchange %q", s.Exchange)
		}
		if _, ok := c.Region(s.Provider, s.RegionCode); !ok {
			t.Errorf("sample references unknown region %s/%s", s.Provider, s.RegionCode)
		}
	}
}

func TestCatalogReturnsCopies(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default() failed: %v", err)
	}
	samples := c.Samples()
	samples[0].LatencyMs = 9999
	if c.Samples()[0].LatencyMs == 9999 {
		t.Errorf("Samples() exposed internal state")
	}
	clouds := c.CloudRegions()
	clouds[0].Regions[0].Code = "mutated"
	if c.CloudRegions()[0].Regions[0].Code == "mutated" {
		t.Errorf("CloudRegions() exposed internal state")
	}
}

func TestNewCatalogValidation(t *testing.T) {
	tests := []struct {
		name      string
		exchanges []Exchange
		clouds    []CloudRegion
		samples   []LatencySample
	}{
		{
			name:      "duplicate exchange",
			exchanges: []Exchange{{Name: "A"}, {Name: "A"}},
		},
		{
			name:   "duplicate region",
			clouds: []CloudRegion{{Provider: "AWS", Regions: []Region{{Code: "x"}, {Code: "x"}}}},
		},
		{
			name:    "negative latency",
			samples: []LatencySample{{Exchange: "A", LatencyMs: -1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.exchanges, tt.clouds, tt.samples)
			if !errors.Is(err, ErrInvalidDataset) {
				t.Errorf("NewCatalog() error = %v; want ErrInvalidDataset", err)
			}
		})
	}
}

func TestLoadDirYAML(t *testing.T) {
	dir, err := os.MkdirTemp("", "dataset-yaml-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			t.Logf("Error removing temp dir: %v", err)
		}
	}()

	files := map[string]string{
		"exchanges.yaml": `
- name: Binance
  provider: AWS
  region: us-east-1
  coords: [-77.5, 39.0]
  city: Ashburn
  country: United States
`,
		"cloud_regions.yml": `
- provider: AWS
  regions:
    - code: us-east-1
      name: N. Virginia
      coords: [-77.4874, 39.0438]
`,
		"latency_samples.json": `[{"exchange":"Binance","provider":"AWS","regionCode":"us-east-1","latencyMs":45}]`,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	c, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	ex, ok := c.Exchange("Binance")
	if !ok || ex.Coords.Lng() != -77.5 || ex.Coords.Lat() != 39.0 {
		t.Errorf("Exchange(Binance) = (%+v, %v); want coords [-77.5 39]", ex, ok)
	}
	if got := c.Samples(); len(got) != 1 || got[0].LatencyMs != 45 {
		t.Errorf("Samples() = %+v; want one sample of 45ms", got)
	}
}

func TestLoadDirMissingFile(t *testing.T) {
	dir, err := os.MkdirTemp("", "dataset-missing-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	if _, err := LoadDir(dir); !errors.Is(err, ErrInvalidDataset) {
		t.Errorf("LoadDir(empty) error = %v; want ErrInvalidDataset", err)
	}
}

func TestCountryCode(t *testing.T) {
	tests := []struct {
		country string
		want    string
	}{
		{"Japan", "JP"},
		{"Atlantis", ""},
	}
	for _, tt := range tests {
		if got := (Exchange{Country: tt.country}).CountryCode(); got != tt.want {
			t.Errorf("CountryCode(%q) = %q; want %q", tt.country, got, tt.want)
		}
	}
}

func TestRegionLocation(t *testing.T) {
	city, cc, ok := RegionLocation("AWS", "us-east-1")
	if !ok || city != "Ashburn" || cc != "US" {
		t.Errorf("RegionLocation(AWS, us-east-1) = (%s, %s, %v); want (Ashburn, US, true)", city, cc, ok)
	}
	if _, _, ok := RegionLocation("GCP", "us-east-1"); ok {
		t.Errorf("RegionLocation(GCP, us-east-1) found; want miss")
	}
}
