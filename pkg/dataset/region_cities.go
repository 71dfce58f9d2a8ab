package dataset

import "strings"

// regionCities maps provider region codes to "City|CC". Codes are unique per
// provider only, so the table is keyed by provider first.
var regionCities = map[string]map[string]string{
	"AWS": {
		"us-east-1":      "Ashburn|US",
		"us-east-2":      "Columbus|US",
		"us-west-1":      "San Francisco|US",
		"us-west-2":      "Portland|US",
		"af-south-1":     "Cape Town|ZA",
		"ap-east-1":      "Hong Kong|HK",
		"ap-south-1":     "Mumbai|IN",
		"ap-northeast-1": "Tokyo|JP",
		"ap-northeast-2": "Seoul|KR",
		"ap-northeast-3": "Osaka|JP",
		"ap-southeast-1": "Singapore|SG",
		"ap-southeast-2": "Sydney|AU",
		"ca-central-1":   "Montreal|CA",
		"eu-central-1":   "Frankfurt|DE",
		"eu-west-1":      "Dublin|IE",
		"eu-west-2":      "London|GB",
		"eu-west-3":      "Paris|FR",
		"eu-north-1":     "Stockholm|SE",
		"me-south-1":     "Manama|BH",
		"sa-east-1":      "São Paulo|BR",
	},
	"GCP": {
		"asia-east1":           "Changhua County|TW",
		"asia-east2":           "Hong Kong|HK",
		"asia-northeast1":      "Tokyo|JP",
		"asia-northeast2":      "Osaka|JP",
		"asia-northeast3":      "Seoul|KR",
		"asia-south1":          "Mumbai|IN",
		"asia-southeast1":      "Jurong West|SG",
		"australia-southeast1": "Sydney|AU",
		"europe-west1":         "St. Ghislain|BE",
		"europe-west2":         "London|GB",
		"europe-west3":         "Frankfurt|DE",
		"europe-west4":         "Eemshaven|NL",
		"southamerica-east1":   "São Paulo|BR",
		"us-central1":          "Council Bluffs|US",
		"us-east1":             "Moncks Corner|US",
		"us-east4":             "Ashburn|US",
		"us-west1":             "The Dalles|US",
	},
	"Azure": {
		"eastus":        "Ashburn|US",
		"eastus2":       "Virginia|US",
		"westus2":       "Quincy|US",
		"centralus":     "Des Moines|US",
		"northeurope":   "Dublin|IE",
		"westeurope":    "Amsterdam|NL",
		"uksouth":       "London|GB",
		"francecentral": "Paris|FR",
		"japaneast":     "Tokyo|JP",
		"koreacentral":  "Seoul|KR",
		"southeastasia": "Singapore|SG",
		"eastasia":      "Hong Kong|HK",
		"australiaeast": "Sydney|AU",
		"brazilsouth":   "São Paulo|BR",
	},
}

// RegionLocation returns the city and ISO country code hosting a provider region.
func RegionLocation(provider, code string) (city, cc string, ok bool) {
	v, ok := regionCities[provider][code]
	if !ok {
		return "", "", false
	}
	city, cc, _ = strings.Cut(v, "|")
	return city, cc, true
}
