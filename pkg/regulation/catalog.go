// Package regulation holds the zoning rule sets that land applications are
// evaluated against. A Catalog is built once at process start and is
// read-only afterwards, so it can be shared freely between goroutines.
package regulation

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownZone is returned when a zone identifier has no rule set.
var ErrUnknownZone = errors.New("unknown zone")

// Canonical zone identifiers.
const (
	ZoneResidential = "Residential"
	ZoneCommercial  = "Commercial"
	ZoneAirport     = "Airport Zone"
	ZoneEco         = "Eco Zone"
)

// Rule is the regulatory rule set for one zone.
type Rule struct {
	ZoneID          string  `yaml:"id" json:"zone_id"`
	MaxFloors       int     `yaml:"max_floors" json:"max_floors"`
	FAR             float64 `yaml:"far" json:"far"`
	BasementAllowed bool    `yaml:"basement_allowed" json:"basement_allowed"`
	MaxHeightM      float64 `yaml:"max_height_m" json:"max_height_m"`
	SetbackM        float64 `yaml:"setback_m" json:"setback_m"`
}

// Validate checks the rule's field constraints.
func (r Rule) Validate() error {
	switch {
	case r.ZoneID == "":
		return errors.New("zone id is required")
	case r.MaxFloors <= 0:
		return fmt.Errorf("zone %q: max_floors must be > 0", r.ZoneID)
	case r.FAR <= 0:
		return fmt.Errorf("zone %q: far must be > 0", r.ZoneID)
	case r.MaxHeightM <= 0:
		return fmt.Errorf("zone %q: max_height_m must be > 0", r.ZoneID)
	case r.SetbackM < 0:
		return fmt.Errorf("zone %q: setback_m must be >= 0", r.ZoneID)
	}
	return nil
}

// Lookuper resolves a zone to its rule set.
type Lookuper interface {
	Lookup(zoneID string) (Rule, error)
}

// Catalog is an immutable mapping from zone identifier to Rule.
type Catalog struct {
	version string
	rules   map[string]Rule
	order   []string
}

// NewCatalog builds a catalog from the given rules. Rules are copied; later
// changes to the slice have no effect on the catalog.
func NewCatalog(version string, rules []Rule) (*Catalog, error) {
	c := &Catalog{
		version: version,
		rules:   make(map[string]Rule, len(rules)),
		order:   make([]string, 0, len(rules)),
	}
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.rules[r.ZoneID]; dup {
			return nil, fmt.Errorf("duplicate zone %q", r.ZoneID)
		}
		c.rules[r.ZoneID] = r
		c.order = append(c.order, r.ZoneID)
	}
	if len(c.rules) == 0 {
		return nil, errors.New("catalog has no zones")
	}
	return c, nil
}

// Default returns the built-in catalog with the canonical zones.
func Default() *Catalog {
	c, err := NewCatalog(DefaultVersion, []Rule{
		{ZoneID: ZoneResidential, MaxFloors: 5, FAR: 2.0, BasementAllowed: true, MaxHeightM: 50, SetbackM: 3},
		{ZoneID: ZoneCommercial, MaxFloors: 8, FAR: 3.0, BasementAllowed: true, MaxHeightM: 80, SetbackM: 5},
		{ZoneID: ZoneAirport, MaxFloors: 3, FAR: 1.5, BasementAllowed: true, MaxHeightM: 30, SetbackM: 10},
		{ZoneID: ZoneEco, MaxFloors: 2, FAR: 1.0, BasementAllowed: false, MaxHeightM: 20, SetbackM: 8},
	})
	if err != nil {
		panic(fmt.Sprintf("regulation: invalid built-in catalog: %v", err))
	}
	return c
}

// Lookup returns the rule set for zoneID or ErrUnknownZone.
func (c *Catalog) Lookup(zoneID string) (Rule, error) {
	r, ok := c.rules[zoneID]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %q", ErrUnknownZone, zoneID)
	}
	return r, nil
}

// Zones returns every rule in catalog order.
func (c *Catalog) Zones() []Rule {
	out := make([]Rule, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.rules[id])
	}
	return out
}

// ZoneIDs returns the sorted zone identifiers.
func (c *Catalog) ZoneIDs() []string {
	ids := make([]string, len(c.order))
	copy(ids, c.order)
	sort.Strings(ids)
	return ids
}

// Version returns the catalog's semantic version.
func (c *Catalog) Version() string {
	return c.version
}
