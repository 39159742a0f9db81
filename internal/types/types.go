package types

import "time"

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinate is inside the WGS84 range.
func (c Coordinate) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

type Trip struct {
	Origin      Coordinate
	Destination Coordinate
}

// TripWindow spans the requested departure to the estimated arrival.
// Time-dependent features evaluate at both endpoints and merge.
type TripWindow struct {
	Start time.Time
	End   time.Time
}

func NewTripWindow(start time.Time, durationSeconds float64) TripWindow {
	return TripWindow{
		Start: start,
		End:   start.Add(time.Duration(durationSeconds * float64(time.Second))),
	}
}

// FeatureRow holds the raw (pre-engineering) model inputs for one trip.
type FeatureRow struct {
	RoadType         string  `json:"road_type"`
	NumLanes         int     `json:"num_lanes"`
	Curvature        float64 `json:"curvature"`
	SpeedLimit       float64 `json:"speed_limit"`
	Lighting         string  `json:"lighting"`
	Weather          string  `json:"weather"`
	RoadSignsPresent bool    `json:"road_signs_present"`
	PublicRoad       bool    `json:"public_road"`
	TimeOfDay        string  `json:"time_of_day"`
	Holiday          bool    `json:"holiday"`
	SchoolSeason     bool    `json:"school_season"`
}

// PredictionResult bundles everything sent back for one query: the raw
// directions payload, the pre-engineering inputs, and the risk score.
type PredictionResult struct {
	Directions  interface{} `json:"mapbox_data"`
	ModelInputs FeatureRow  `json:"model_inputs"`
	Prediction  float64     `json:"prediction"`
}
