package mapbox

// Road type categories derived from route annotations.
const (
	RoadTypeHighway = "highway"
	RoadTypeUrban   = "urban"
	RoadTypeRural   = "rural"
)

const (
	kmhPerMPH = 1.60934

	// Routes with no posted limit anywhere fall back to 10 mph.
	defaultMaxSpeedKMH = 16.0934
)

// Facts are the categorical and scalar values derived from a directions
// response purely by existence checks over its intersections and annotations.
type Facts struct {
	MaxSpeedMPH      float64
	IsUrban          bool
	IsHighway        bool
	RoadType         string
	RoadSignsPresent bool
	LaneCount        int
}

// ExtractFacts walks the route/leg/step/intersection tree once per derivation
// and resolves every annotation-based feature.
func ExtractFacts(resp *Response) Facts {
	isUrban := anyIsUrban(resp)
	isHighway := anyClassIn(resp, "primary", "secondary", "motorway")

	f := Facts{
		MaxSpeedMPH: maxSpeedMPH(resp),
		IsUrban:     isUrban,
		IsHighway:   isHighway,
		// is_urban is a decent proxy for signage; there is no direct signal.
		RoadSignsPresent: isUrban,
		LaneCount:        laneCount(resp),
	}

	// Highway trumps urban.
	switch {
	case isHighway:
		f.RoadType = RoadTypeHighway
	case isUrban:
		f.RoadType = RoadTypeUrban
	default:
		f.RoadType = RoadTypeRural
	}
	return f
}

// maxSpeedMPH returns the maximum posted speed across all legs in mph. The
// annotation's unit is honored; unitless or km/h values are divided by 1.60934.
func maxSpeedMPH(resp *Response) float64 {
	top := 0.0
	found := false
	for _, route := range resp.Routes {
		for _, leg := range route.Legs {
			for _, ms := range leg.Annotation.MaxSpeed {
				if ms.Speed == nil {
					continue
				}
				mph := *ms.Speed
				if ms.Unit != "mph" {
					mph /= kmhPerMPH
				}
				if !found || mph > top {
					top = mph
					found = true
				}
			}
		}
	}
	if !found {
		return defaultMaxSpeedKMH / kmhPerMPH
	}
	return top
}

func anyIsUrban(resp *Response) bool {
	for _, route := range resp.Routes {
		for _, leg := range route.Legs {
			for _, step := range leg.Steps {
				for _, in := range step.Intersections {
					if in.IsUrban != nil {
						return true
					}
				}
			}
		}
	}
	return false
}

func anyClassIn(resp *Response, classes ...string) bool {
	for _, route := range resp.Routes {
		for _, leg := range route.Legs {
			for _, step := range leg.Steps {
				for _, in := range step.Intersections {
					if in.MapboxStreetsV8 == nil {
						continue
					}
					for _, cls := range classes {
						if in.MapboxStreetsV8.Class == cls {
							return true
						}
					}
				}
			}
		}
	}
	return false
}

// laneCount is a proxy from street class: motorway counts as three lanes,
// primary and secondary as two, everything else as one. It deliberately does
// not reuse the highway/urban precedence above.
func laneCount(resp *Response) int {
	if anyClassIn(resp, "motorway") {
		return 3
	}
	if anyClassIn(resp, "primary", "secondary") {
		return 2
	}
	return 1
}
