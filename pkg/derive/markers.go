package derive

import (
	"github.com/paulmach/go.geojson"
	"github.com/sudorandom/latency-map/pkg/dataset"
	"github.com/sudorandom/latency-map/pkg/filter"
	"github.com/sudorandom/latency-map/pkg/sources"
)

// MarkerFeatures are the point markers for selected exchanges and the cloud
// server locations of selected providers. Their properties carry what the
// hover popups show.
type MarkerFeatures struct {
	Exchanges *geojson.FeatureCollection `json:"exchanges"`
	Servers   *geojson.FeatureCollection `json:"servers"`
}

func Markers(cat *dataset.Catalog, c filter.Criteria) MarkerFeatures {
	out := MarkerFeatures{
		Exchanges: geojson.NewFeatureCollection(),
		Servers:   geojson.NewFeatureCollection(),
	}
	for _, e := range cat.Exchanges() {
		if !c.HasExchange(e.Name) || !e.Coords.Valid() {
			continue
		}
		f := geojson.NewPointFeature(point(e.Coords))
		f.ID = e.Name + "-marker"
		f.SetProperty("name", e.Name)
		f.SetProperty("provider", e.Provider)
		f.SetProperty("providerLogo", sources.ProviderLogos[e.Provider])
		f.SetProperty("color", sources.MarkerColors[e.Provider])
		f.SetProperty("imageUrl", e.ImageURL)
		f.SetProperty("city", e.City)
		f.SetProperty("country", e.Country)
		f.SetProperty("countryCode", e.CountryCode())
		out.Exchanges.AddFeature(f)
	}
	for _, cloud := range cat.CloudRegions() {
		if !c.HasProvider(cloud.Provider) {
			continue
		}
		for _, r := range cloud.Regions {
			if !r.Coords.Valid() {
				continue
			}
			f := geojson.NewPointFeature(point(r.Coords))
			f.ID = cloud.Provider + "-" + r.Code + "-marker"
			f.SetProperty("provider", cloud.Provider)
			f.SetProperty("providerLogo", sources.ProviderLogos[cloud.Provider])
			f.SetProperty("color", sources.MarkerColors[cloud.Provider])
			f.SetProperty("code", r.Code)
			f.SetProperty("name", r.Name)
			if city, cc, ok := dataset.RegionLocation(cloud.Provider, r.Code); ok {
				f.SetProperty("city", city)
				f.SetProperty("countryCode", cc)
			}
			out.Servers.AddFeature(f)
		}
	}
	return out
}

// LegendEntry is one swatch of the map legend.
type LegendEntry struct {
	Label string `json:"label"`
	Color string `json:"color"`
	Note  string `json:"note,omitempty"`
}

type Legend struct {
	Providers []LegendEntry `json:"providers"`
	Latencies []LegendEntry `json:"latencies"`
	Regions   []LegendEntry `json:"regions"`
}

func NewLegend() Legend {
	var l Legend
	for _, p := range sources.ProviderOrder {
		l.Providers = append(l.Providers, LegendEntry{Label: p, Color: sources.MarkerColors[p]})
		l.Regions = append(l.Regions, LegendEntry{Label: p, Color: sources.RegionColor(p)})
	}
	l.Latencies = []LegendEntry{
		{Label: string(Low), Color: Low.Color(), Note: "< 60 ms"},
		{Label: string(Medium), Color: Medium.Color(), Note: "60-119 ms"},
		{Label: string(High), Color: High.Color(), Note: ">= 120 ms"},
	}
	return l
}
