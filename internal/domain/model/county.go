package model

// County is one tenant in the static registry. Codes are the tenant ids
// carried in bearer tokens; names appear in extracted records.
type County struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// countyRegistry is the fixed tenant partition of the platform.
var countyRegistry = []County{
	{Code: "CT1", Name: "Orange"},
	{Code: "CT2", Name: "Kings"},
	{Code: "CT3", Name: "Alameda"},
	{Code: "CT4", Name: "Fresno"},
	{Code: "CT5", Name: "Merced"},
}

// Counties returns the registry in stable order.
func Counties() []County {
	out := make([]County, len(countyRegistry))
	copy(out, countyRegistry)
	return out
}

// CountyName resolves a county code to its display name.
func CountyName(code string) (string, bool) {
	for _, c := range countyRegistry {
		if c.Code == code {
			return c.Name, true
		}
	}
	return "", false
}

// KnownCounty reports whether the code is registered.
func KnownCounty(code string) bool {
	_, ok := CountyName(code)
	return ok
}
