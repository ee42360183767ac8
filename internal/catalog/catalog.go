// internal/catalog/catalog.go
package catalog

import "math/rand"

// Location is a single entry in the static place catalog. The Name is the
// canonical spelling that spy guesses are compared against.
type Location struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Categories used to group locations in the client UI.
const (
	CategoryTravel   = "travel"
	CategoryLeisure  = "leisure"
	CategoryWork     = "work"
	CategoryTransit  = "transit"
	CategoryEveryday = "everyday"
)

// locations is the fixed round catalog. Order is stable so clients can
// render a consistent board; picks are uniform over the whole list.
var locations = []Location{
	{"Airplane", CategoryTransit},
	{"Amusement Park", CategoryLeisure},
	{"Art Museum", CategoryLeisure},
	{"Bank", CategoryEveryday},
	{"Beach", CategoryTravel},
	{"Casino", CategoryLeisure},
	{"Cathedral", CategoryTravel},
	{"Circus Tent", CategoryLeisure},
	{"Corporate Party", CategoryWork},
	{"Cruise Ship", CategoryTravel},
	{"Day Spa", CategoryLeisure},
	{"Embassy", CategoryWork},
	{"Hospital", CategoryEveryday},
	{"Hotel", CategoryTravel},
	{"Military Base", CategoryWork},
	{"Movie Studio", CategoryWork},
	{"Night Club", CategoryLeisure},
	{"Ocean Liner", CategoryTravel},
	{"Passenger Train", CategoryTransit},
	{"Pirate Ship", CategoryTravel},
	{"Polar Station", CategoryWork},
	{"Police Station", CategoryEveryday},
	{"Restaurant", CategoryEveryday},
	{"School", CategoryEveryday},
	{"Service Station", CategoryTransit},
	{"Space Station", CategoryWork},
	{"Submarine", CategoryTransit},
	{"Supermarket", CategoryEveryday},
	{"Theater", CategoryLeisure},
	{"University", CategoryEveryday},
}

var byName map[string]Location

func init() {
	byName = make(map[string]Location, len(locations))
	for _, loc := range locations {
		byName[loc.Name] = loc
	}
}

// All returns a copy of the catalog.
func All() []Location {
	out := make([]Location, len(locations))
	copy(out, locations)
	return out
}

// Names returns every location name in catalog order.
func Names() []string {
	names := make([]string, len(locations))
	for i, loc := range locations {
		names[i] = loc.Name
	}
	return names
}

// Contains reports whether name is a catalog entry (exact match).
func Contains(name string) bool {
	_, ok := byName[name]
	return ok
}

// PickRandom returns a uniformly chosen catalog entry.
func PickRandom() Location {
	return locations[rand.Intn(len(locations))]
}
