// Package dataset holds the read-only reference data the map is built from:
// exchanges, cloud provider regions and baseline latency samples.
package dataset

import (
	"errors"
	"fmt"
	"slices"

	"github.com/biter777/countries"
)

var ErrInvalidDataset = errors.New("invalid dataset")

// Coordinates are [longitude, latitude]. A value without exactly two
// elements is treated as missing.
type Coordinates []float64

func (c Coordinates) Valid() bool { return len(c) == 2 }
func (c Coordinates) Lng() float64 { return c[0] }
func (c Coordinates) Lat() float64 { return c[1] }

type Exchange struct {
	Name     string      `json:"name" yaml:"name"`
	Provider string      `json:"provider" yaml:"provider"`
	Region   string      `json:"region,omitempty" yaml:"region,omitempty"`
	Coords   Coordinates `json:"coords" yaml:"coords"`
	City     string      `json:"city" yaml:"city"`
	Country  string      `json:"country" yaml:"country"`
	ImageURL string      `json:"imageUrl" yaml:"imageUrl"`
}

// CountryCode returns the ISO alpha-2 code of the exchange's country, or ""
// when the name is not recognised.
func (e Exchange) CountryCode() string {
	cc := countries.ByName(e.Country)
	if cc == countries.Unknown {
		return ""
	}
	return cc.Alpha2()
}

type Region struct {
	Code   string      `json:"code" yaml:"code"`
	Name   string      `json:"name" yaml:"name"`
	Coords Coordinates `json:"coords" yaml:"coords"`
}

type CloudRegion struct {
	Provider string   `json:"provider" yaml:"provider"`
	Regions  []Region `json:"regions" yaml:"regions"`
}

type LatencySample struct {
	Exchange   string  `json:"exchange" yaml:"exchange"`
	Provider   string  `json:"provider" yaml:"provider"`
	RegionCode string  `json:"regionCode" yaml:"regionCode"`
	LatencyMs  float64 `json:"latencyMs" yaml:"latencyMs"`
}

// Catalog indexes the three datasets. It is immutable after construction;
// every accessor returns a copy.
type Catalog struct {
	exchanges []Exchange
	clouds    []CloudRegion
	samples   []LatencySample

	exchangeIdx map[string]int
	regionIdx   map[string]map[string]Region
}

func NewCatalog(exchanges []Exchange, clouds []CloudRegion, samples []LatencySample) (*Catalog, error) {
	c := &Catalog{
		exchanges:   slices.Clone(exchanges),
		clouds:      make([]CloudRegion, len(clouds)),
		samples:     slices.Clone(samples),
		exchangeIdx: make(map[string]int, len(exchanges)),
		regionIdx:   make(map[string]map[string]Region, len(clouds)),
	}
	for i, e := range c.exchanges {
		if e.Name == "" {
			return nil, fmt.Errorf("%w: exchange %d has no name", ErrInvalidDataset, i)
		}
		if _, dup := c.exchangeIdx[e.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate exchange %q", ErrInvalidDataset, e.Name)
		}
		c.exchangeIdx[e.Name] = i
	}
	for i, cr := range clouds {
		c.clouds[i] = CloudRegion{Provider: cr.Provider, Regions: slices.Clone(cr.Regions)}
		byCode, ok := c.regionIdx[cr.Provider]
		if !ok {
			byCode = make(map[string]Region, len(cr.Regions))
			c.regionIdx[cr.Provider] = byCode
		}
		for _, r := range cr.Regions {
			if _, dup := byCode[r.Code]; dup {
				return nil, fmt.Errorf("%w: duplicate region %s/%s", ErrInvalidDataset, cr.Provider, r.Code)
			}
			byCode[r.Code] = r
		}
	}
	for i, s := range c.samples {
		if s.LatencyMs < 0 {
			return nil, fmt.Errorf("%w: sample %d (%s -> %s) has negative latency", ErrInvalidDataset, i, s.Exchange, s.RegionCode)
		}
	}
	return c, nil
}

func (c *Catalog) Exchange(name string) (Exchange, bool) {
	i, ok := c.exchangeIdx[name]
	if !ok {
		return Exchange{}, false
	}
	return c.exchanges[i], true
}

func (c *Catalog) Region(provider, code string) (Region, bool) {
	r, ok := c.regionIdx[provider][code]
	return r, ok
}

// Provider returns the cloud region list of one provider.
func (c *Catalog) Provider(name string) (CloudRegion, bool) {
	for _, cr := range c.clouds {
		if cr.Provider == name {
			return CloudRegion{Provider: cr.Provider, Regions: slices.Clone(cr.Regions)}, true
		}
	}
	return CloudRegion{}, false
}

func (c *Catalog) Exchanges() []Exchange { return slices.Clone(c.exchanges) }

func (c *Catalog) CloudRegions() []CloudRegion {
	out := make([]CloudRegion, len(c.clouds))
	for i, cr := range c.clouds {
		out[i] = CloudRegion{Provider: cr.Provider, Regions: slices.Clone(cr.Regions)}
	}
	return out
}

func (c *Catalog) Samples() []LatencySample { return slices.Clone(c.samples) }
