package server

import (
	"errors"
	"fmt"
	"net"

	"github.com/oschwald/maxminddb-golang"
)

var ErrNoLocation = errors.New("no location for address")

// Location is what /api/locate reports for the caller's address.
type Location struct {
	IP          string  `json:"ip"`
	City        string  `json:"city,omitempty"`
	CountryCode string  `json:"countryCode,omitempty"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

// GeoIP resolves addresses against a MaxMind city database.
type GeoIP struct {
	reader *maxminddb.Reader
}

func OpenGeoIP(path string) (*GeoIP, error) {
	r, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", path, err)
	}
	return &GeoIP{reader: r}, nil
}

func (g *GeoIP) Close() error {
	return g.reader.Close()
}

func (g *GeoIP) Locate(ip net.IP) (Location, error) {
	var record struct {
		City struct {
			Names map[string]string `maxminddb:"names"`
		} `maxminddb:"city"`
		Country struct {
			ISOCode string `maxminddb:"iso_code"`
		} `maxminddb:"country"`
		Location struct {
			Latitude  float64 `maxminddb:"latitude"`
			Longitude float64 `maxminddb:"longitude"`
		} `maxminddb:"location"`
	}
	_, ok, err := g.reader.LookupNetwork(ip, &record)
	if err != nil {
		return Location{}, err
	}
	if !ok || (record.Location.Latitude == 0 && record.Location.Longitude == 0) {
		return Location{}, ErrNoLocation
	}
	return Location{
		IP:          ip.String(),
		City:        record.City.Names["en"],
		CountryCode: record.Country.ISOCode,
		Lat:         record.Location.Latitude,
		Lng:         record.Location.Longitude,
	}, nil
}
