package geometry

import (
	"math"
	"testing"

	t "github.com/tarterware/roadrisk/internal/types"
)

const tolerance = 1e-6

func TestTurnAngleCollinear(tt *testing.T) {
	// Passing straight through the middle point describes a 180 degree angle.
	angle := TurnAngle(Point{0, 0}, Point{1, 0}, Point{2, 0})
	if math.Abs(angle-180) > tolerance {
		tt.Fatalf("expected 180 for straight-through triplet, got %v", angle)
	}

	// Doubling back on the same line describes 0 degrees.
	angle = TurnAngle(Point{0, 0}, Point{1, 0}, Point{0, 0})
	if math.Abs(angle) > tolerance {
		tt.Fatalf("expected 0 for doubled-back triplet, got %v", angle)
	}
}

func TestTurnAngleRightAngle(tt *testing.T) {
	angle := TurnAngle(Point{1, 0}, Point{0, 0}, Point{0, 1})
	if math.Abs(angle-90) > tolerance {
		tt.Fatalf("expected 90, got %v", angle)
	}
}

func TestTurnAngleDegenerateVector(tt *testing.T) {
	// A duplicate point gives a zero-length arrow; treated as "no turn".
	angle := TurnAngle(Point{1, 1}, Point{1, 1}, Point{2, 2})
	if angle != 0 {
		tt.Fatalf("expected 0 for zero-length vector, got %v", angle)
	}
}

func TestCurvatureProfileShape(tt *testing.T) {
	pts := []Point{{0, 0}, {1, 0}, {2, 1}, {3, 1}, {4, 0}}
	profile := CurvatureProfile(pts)

	if len(profile) != len(pts) {
		tt.Fatalf("profile length %d does not match polyline length %d", len(profile), len(pts))
	}
	if profile[0] != 180 || profile[len(profile)-1] != 180 {
		tt.Fatalf("expected 180 sentinels at both ends, got %v and %v", profile[0], profile[len(profile)-1])
	}
}

func TestCurvatureProfileTwoPoints(tt *testing.T) {
	profile := CurvatureProfile([]Point{{0, 0}, {5, 5}})
	if len(profile) != 2 || profile[0] != 180 || profile[1] != 180 {
		tt.Fatalf("expected [180 180], got %v", profile)
	}
	if c := Curviness(profile); c != 0 {
		tt.Fatalf("expected curviness 0 for two-point polyline, got %v", c)
	}
}

func TestCurvinessScale(tt *testing.T) {
	// (180 - max(avg, 170)) / 10: zero only for a perfectly straight profile,
	// 1 once the average reaches the 170 threshold.
	if c := Curviness([]float64{180, 180, 180}); c != 0 {
		tt.Fatalf("expected curviness 0 for an all-180 profile, got %v", c)
	}

	gentle := Curviness([]float64{180, 175, 180}) // avg 178.33
	if math.Abs(gentle-1.0/6.0) > 1e-9 {
		tt.Fatalf("expected curviness 1/6 for avg 178.33, got %v", gentle)
	}

	if c := Curviness([]float64{170, 170, 170}); c != 1 {
		tt.Fatalf("expected curviness 1 at the 170 threshold, got %v", c)
	}
}

func TestCurvinessIncreasesWithSharpness(tt *testing.T) {
	gentle := Curviness([]float64{180, 176, 180, 176, 180})
	sharp := Curviness([]float64{180, 160, 180, 160, 180})

	if gentle <= 0 {
		tt.Fatalf("expected positive curviness for gentle turns, got %v", gentle)
	}
	if sharp <= gentle {
		tt.Fatalf("expected sharper turns to score higher: gentle=%v sharp=%v", gentle, sharp)
	}
	if gentle > 1 || sharp > 1 {
		tt.Fatalf("curviness must stay within [0,1]: gentle=%v sharp=%v", gentle, sharp)
	}
}

func TestCurvinessSaturates(tt *testing.T) {
	// A profile far below the threshold pins the score at 1.
	if c := Curviness([]float64{180, 20, 20, 20, 180}); c != 1 {
		tt.Fatalf("expected saturated curviness 1, got %v", c)
	}
}

func TestUTMZone(tt *testing.T) {
	cases := []struct {
		lng  float64
		zone int
	}{
		{-77.0365, 18}, // Washington DC
		{-122.4194, 10},
		{0.1, 31},
	}
	for _, c := range cases {
		if z := UTMZone(c.lng); z != c.zone {
			tt.Errorf("UTMZone(%v) = %d, expected %d", c.lng, z, c.zone)
		}
	}
}

func TestRouteCurvinessStraightRoute(tt *testing.T) {
	origin := t.Coordinate{Latitude: 38.8977, Longitude: -77.0365}
	coords := [][]float64{
		{-77.0365, 38.8977},
		{-77.0360, 38.8977},
		{-77.0355, 38.8977},
		{-77.0350, 38.8977},
	}
	if c := RouteCurviness(coords, origin); c > 0.01 {
		tt.Fatalf("expected near-zero curviness for straight east-west route, got %v", c)
	}
}
