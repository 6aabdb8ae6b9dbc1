package plan

// Plan describes a subscription tier: display name, USD price and how many
// days a paid purchase stays valid.
type Plan struct {
	Name     string
	PriceUSD float64
	Days     int
}

// Catalog maps plan keys to plans. It is built once at startup and read-only
// afterwards.
type Catalog map[string]Plan

// DefaultDays is the validity fallback when a purchase references a plan key
// that is no longer in the catalog.
const DefaultDays = 30

// Default returns the built-in plan set.
func Default() Catalog {
	return Catalog{
		"free": {Name: "Free Trial", PriceUSD: 0, Days: 3},
		"p10":  {Name: "Plan 10", PriceUSD: 10, Days: 30},
		"p25":  {Name: "Plan 25", PriceUSD: 25, Days: 30},
		"p50":  {Name: "Plan 50", PriceUSD: 50, Days: 30},
		"p100": {Name: "Plan 100", PriceUSD: 100, Days: 30},
		"p200": {Name: "Plan 200", PriceUSD: 200, Days: 30},
	}
}

func (c Catalog) Lookup(key string) (Plan, bool) {
	p, ok := c[key]
	return p, ok
}

// DaysOrDefault returns the validity period for key, or DefaultDays when the
// key is unknown.
func (c Catalog) DaysOrDefault(key string) int {
	if p, ok := c[key]; ok && p.Days > 0 {
		return p.Days
	}
	return DefaultDays
}
