package derive

import (
	"fmt"

	"github.com/paulmach/go.geojson"
	"github.com/sudorandom/latency-map/pkg/dataset"
	"github.com/sudorandom/latency-map/pkg/sources"
)

// RegionExchange is one exchange listed in a region's metadata.
type RegionExchange struct {
	Name     string `json:"name"`
	City     string `json:"city"`
	Provider string `json:"provider"`
}

// RegionInfo is the metadata attached to a region overlay and shown when its
// marker is inspected.
type RegionInfo struct {
	Provider    string           `json:"provider"`
	Code        string           `json:"code"`
	Name        string           `json:"name"`
	Color       string           `json:"color"`
	ServerCount int              `json:"serverCount"`
	Exchanges   []RegionExchange `json:"exchanges"`
}

// RegionFeatures are the region overlays: hull polygons where the points
// span an area, and one centroid marker per region code.
type RegionFeatures struct {
	Polygons *geojson.FeatureCollection `json:"polygons"`
	Markers  *geojson.FeatureCollection `json:"markers"`

	info map[string]RegionInfo
}

// Info returns the metadata of a polygon or marker feature by its id.
func (r RegionFeatures) Info(featureID string) (RegionInfo, bool) {
	info, ok := r.info[featureID]
	return info, ok
}

func (ri RegionInfo) apply(f *geojson.Feature) {
	f.SetProperty("provider", ri.Provider)
	f.SetProperty("code", ri.Code)
	f.SetProperty("color", ri.Color)
	f.SetProperty("name", ri.Name)
	f.SetProperty("serverCount", ri.ServerCount)
	f.SetProperty("exchanges", ri.Exchanges)
}

func exchangeCity(e dataset.Exchange) string {
	switch {
	case e.City != "":
		return e.City
	case e.Region != "":
		return e.Region
	default:
		return "—"
	}
}

// Regions groups each provider's regions by code, associates the exchanges
// hosted in that code, and builds the hull and centroid features.
func Regions(cat *dataset.Catalog) RegionFeatures {
	out := RegionFeatures{
		Polygons: geojson.NewFeatureCollection(),
		Markers:  geojson.NewFeatureCollection(),
		info:     make(map[string]RegionInfo),
	}
	exchanges := cat.Exchanges()

	for _, cloud := range cat.CloudRegions() {
		color := sources.RegionColor(cloud.Provider)

		var codes []string
		grouped := make(map[string][]dataset.Region)
		for _, r := range cloud.Regions {
			if _, seen := grouped[r.Code]; !seen {
				codes = append(codes, r.Code)
			}
			grouped[r.Code] = append(grouped[r.Code], r)
		}

		for _, code := range codes {
			group := grouped[code]
			var pts []Point
			for _, r := range group {
				if r.Coords.Valid() {
					pts = append(pts, Point{r.Coords.Lng(), r.Coords.Lat()})
				}
			}
			info := RegionInfo{
				Provider:  cloud.Provider,
				Code:      code,
				Name:      group[0].Name,
				Color:     color,
				Exchanges: []RegionExchange{},
			}
			for _, e := range exchanges {
				if e.Region != code {
					continue
				}
				info.Exchanges = append(info.Exchanges, RegionExchange{
					Name:     e.Name,
					City:     exchangeCity(e),
					Provider: e.Provider,
				})
				if e.Coords.Valid() {
					pts = append(pts, Point{e.Coords.Lng(), e.Coords.Lat()})
				}
			}
			info.ServerCount = len(info.Exchanges)
			if len(pts) == 0 {
				continue
			}

			if ring := ConvexHull(pts); ring != nil {
				coords := make([][]float64, len(ring))
				for i, p := range ring {
					coords[i] = []float64{p[0], p[1]}
				}
				poly := geojson.NewPolygonFeature([][][]float64{coords})
				poly.ID = fmt.Sprintf("%s-%s-poly-%s", cloud.Provider, code, info.Name)
				info.apply(poly)
				out.Polygons.AddFeature(poly)
				out.info[poly.ID.(string)] = info
			}

			c := Centroid(pts)
			marker := geojson.NewPointFeature([]float64{c[0], c[1]})
			marker.ID = fmt.Sprintf("%s-%s-marker-%s", cloud.Provider, code, info.Name)
			info.apply(marker)
			out.Markers.AddFeature(marker)
			out.info[marker.ID.(string)] = info
		}
	}
	return out
}
