package calib

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Landmark is a geographic reference point (WGS84 degrees, altitude in metres)
type Landmark struct {
	ID       string  `yaml:"id" json:"id" validate:"required"`
	Lat      float64 `yaml:"lat" json:"lat" validate:"gte=-85,lte=85"`
	Lon      float64 `yaml:"lon" json:"lon" validate:"gte=-180,lte=180"`
	Altitude float64 `yaml:"altitude" json:"altitude"`
}

// Site is the geographic origin the landmarks are expressed relative to
type Site struct {
	Lat           float64 `yaml:"lat" json:"lat" validate:"gte=-85,lte=85"`
	Lon           float64 `yaml:"lon" json:"lon" validate:"gte=-180,lte=180"`
	FloorAltitude float64 `yaml:"floorAltitude" json:"floorAltitude"`
}

// ToMercator projects a WGS84 lon/lat position to Web-Mercator (EPSG:3857) metres
func ToMercator(lon, lat float64) orb.Point {
	return project.Point(orb.Point{lon, lat}, project.WGS84.ToMercator)
}

// ProjectLandmarks converts landmarks into reference points local to site,
// in a Y-up frame: X east, Y height above the site floor, Z south (-north).
// Mercator distances are scaled by cos(site latitude) to get ground metres,
// which is accurate over the few kilometres a site spans. Y includes the drop
// of the earth's surface below the site's tangent plane, d²/2R for a ground
// distance d (about 8 m at 10 km).
func ProjectLandmarks(site Site, landmarks []Landmark) ([]ReferencePoint, error) {
	if math.Abs(site.Lat) > 85 {
		return nil, &ConfigurationError{Field: "site.lat", Reason: fmt.Sprintf("latitude %.6f outside Web-Mercator range", site.Lat)}
	}

	origin := ToMercator(site.Lon, site.Lat)
	scale := math.Cos(radians(site.Lat))

	refs := make([]ReferencePoint, 0, len(landmarks))
	for i, lm := range landmarks {
		if math.Abs(lm.Lat) > 85 {
			return nil, &ConfigurationError{
				Field:  fmt.Sprintf("landmarks[%d].lat", i),
				Reason: fmt.Sprintf("latitude %.6f outside Web-Mercator range", lm.Lat),
			}
		}
		p := ToMercator(lm.Lon, lm.Lat)
		x := (p.X() - origin.X()) * scale
		z := -(p.Y() - origin.Y()) * scale
		refs = append(refs, ReferencePoint{
			ID: lm.ID,
			Position: r3.Vector{
				X: x,
				Y: lm.Altitude - site.FloorAltitude - curvatureDrop(math.Hypot(x, z)),
				Z: z,
			},
		})
	}
	return refs, nil
}

// curvatureDrop is how far the surface falls below the tangent plane at ground distance d
func curvatureDrop(d float64) float64 {
	return d * d / (2 * orb.EarthRadius)
}
