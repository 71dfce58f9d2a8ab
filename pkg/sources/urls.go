package sources

const (
	RadarIQITimeseriesURL = "https://api.cloudflare.com/client/v4/radar/quality/iqi/timeseries_groups"
	RadarLocations        = "US,AP,SA,EU,UK"

	ProxyLatenciesPath = "/api/real-time-latencies"
	DefaultProxyURL    = "http://localhost:8080" + ProxyLatenciesPath

	MapStyleURL = "mapbox://styles/mapbox/standard"
)

// ProviderLogos holds the logo shown next to a cloud provider in popups and the legend.
var ProviderLogos = map[string]string{
	"AWS":   "https://icon2.cleanpng.com/20180817/vog/8968d0640f2c4053333ce7334314ef83.webp",
	"GCP":   "https://encrypted-tbn0.gstatic.com/images?q=tbn:ANd9GcRKqhrpyiPo_hqQ42khSzMSiKfyZiFEtA1UIw&s",
	"Azure": "https://upload.wikimedia.org/wikipedia/commons/thumb/f/fa/Microsoft_Azure.svg/1024px-Microsoft_Azure.svg.png",
}

// MarkerColors is the legend colour of each provider's point markers.
var MarkerColors = map[string]string{
	"AWS":   "blue",
	"GCP":   "red",
	"Azure": "yellow",
}

// RegionColors is the fill colour of each provider's region overlays.
var RegionColors = map[string]string{
	"AWS":   "#3B82F6",
	"GCP":   "#8B5CF6",
	"Azure": "#14B8A6",
}

const DefaultRegionColor = "#888888"

// ProviderOrder is the display order used by the legend.
var ProviderOrder = []string{"AWS", "GCP", "Azure"}

// RegionColor returns the overlay colour for a provider, falling back to grey.
func RegionColor(provider string) string {
	if c, ok := RegionColors[provider]; ok {
		return c
	}
	return DefaultRegionColor
}
