package geo

import (
	"fmt"
	"strings"

	"github.com/ctessum/geom/proj"
)

// Known reference systems by EPSG tag.
const (
	WGS84         = "EPSG:4326"
	GreatLakesAEA = "EPSG:3175" // NAD83 / Great Lakes and St Lawrence Albers
	ConusAEA      = "EPSG:5070" // NAD83 / Conus Albers
	WebMercator   = "EPSG:3857"
)

var registry = map[string]string{
	WGS84:         "+proj=longlat +ellps=WGS84 +datum=WGS84 +no_defs",
	GreatLakesAEA: "+proj=aea +lat_1=42.122774 +lat_2=49.01518 +lat_0=45.568977 +lon_0=-84.455955 +x_0=1000000 +y_0=1000000 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
	ConusAEA:      "+proj=aea +lat_1=29.5 +lat_2=45.5 +lat_0=23 +lon_0=-96 +x_0=0 +y_0=0 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
	WebMercator:   "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs",
}

// System is a parsed spatial reference system.
type System struct {
	ID         string // identifier as given by the caller
	Definition string // proj4 definition
	Geographic bool   // lat/long in degrees
	sr         *proj.SR
}

// ParseSystem resolves an EPSG tag from the built-in registry or a raw proj4
// definition ("+proj=...").
func ParseSystem(id string) (*System, error) {
	key := strings.ToUpper(strings.TrimSpace(id))
	def, ok := registry[key]
	if !ok {
		if !strings.HasPrefix(strings.TrimSpace(id), "+proj=") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidReferenceSystem, id)
		}
		def = strings.TrimSpace(id)
	}

	sr, err := proj.Parse(def)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidReferenceSystem, id, err)
	}
	return &System{
		ID:         id,
		Definition: def,
		Geographic: isGeographic(def),
		sr:         sr,
	}, nil
}

// KnownSystems returns the registered EPSG tags.
func KnownSystems() []string {
	return []string{WGS84, GreatLakesAEA, ConusAEA, WebMercator}
}

func isGeographic(def string) bool {
	for _, f := range strings.Fields(def) {
		if f == "+proj=longlat" || f == "+proj=latlong" {
			return true
		}
	}
	return false
}
