// Package geometry computes the curviness of a route polyline. Coordinates
// are first projected into the UTM zone of the route origin so distances and
// angles are not distorted by latitude.
package geometry

import (
	"math"

	t "github.com/tarterware/roadrisk/internal/types"
	"github.com/wroge/wgs84"
	"gonum.org/v1/gonum/stat"
)

// Profile averages at or below this angle saturate the curviness score at 1.
const straightnessThreshold = 170.0

// Point is a projected position in meters.
type Point struct {
	X float64
	Y float64
}

// UTMZone returns the 6-degree UTM zone number containing the longitude.
func UTMZone(lng float64) int {
	return int(math.Ceil((lng + 180.0) / 6.0))
}

// Project converts GeoJSON (longitude, latitude) pairs into the UTM zone
// selected from the route origin. The whole polyline shares one zone so
// vertex-to-vertex vectors stay comparable across a zone boundary.
func Project(coords [][]float64, origin t.Coordinate) []Point {
	zone := UTMZone(origin.Longitude)
	toUTM := wgs84.LonLat().To(wgs84.UTM(float64(zone), origin.Latitude >= 0))

	pts := make([]Point, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		east, north, _ := toUTM(c[0], c[1], 0)
		pts = append(pts, Point{X: east, Y: north})
	}
	return pts
}

// TurnAngle measures the angle in degrees described at p2 by the arrows
// p2->p1 and p2->p3, using atan2 over the 2D cross and dot products so it
// stays stable near 0 and 180. A degenerate arrow of zero length returns 0.
func TurnAngle(p1, p2, p3 Point) float64 {
	v1x, v1y := p1.X-p2.X, p1.Y-p2.Y
	v2x, v2y := p3.X-p2.X, p3.Y-p2.Y

	if (v1x == 0 && v1y == 0) || (v2x == 0 && v2y == 0) {
		return 0
	}

	cross := v1x*v2y - v1y*v2x
	dot := v1x*v2x + v1y*v2y
	return math.Atan2(math.Abs(cross), dot) * 180.0 / math.Pi
}

// CurvatureProfile returns one angle per vertex. The first and last vertices
// have no triplet and are assigned 180 (straight).
func CurvatureProfile(pts []Point) []float64 {
	if len(pts) < 3 {
		profile := make([]float64, len(pts))
		for i := range profile {
			profile[i] = 180
		}
		return profile
	}

	profile := make([]float64, 0, len(pts))
	profile = append(profile, 180)
	for i := 1; i < len(pts)-1; i++ {
		profile = append(profile, TurnAngle(pts[i-1], pts[i], pts[i+1]))
	}
	profile = append(profile, 180)
	return profile
}

// Curviness collapses a curvature profile to [0,1]: 0 for a perfectly
// straight profile, rising linearly as the average turn gets sharper and
// saturating at 1 once the average reaches the straightness threshold.
func Curviness(profile []float64) float64 {
	if len(profile) == 0 {
		return 0
	}
	raw := math.Max(stat.Mean(profile, nil), straightnessThreshold)
	return (180.0 - raw) / (180.0 - straightnessThreshold)
}

// RouteCurviness projects the route geometry and aggregates its profile.
func RouteCurviness(coords [][]float64, origin t.Coordinate) float64 {
	return Curviness(CurvatureProfile(Project(coords, origin)))
}
