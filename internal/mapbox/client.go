package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tarterware/roadrisk/internal/common"
	t "github.com/tarterware/roadrisk/internal/types"
)

// Response is the raw Mapbox Directions v5 payload. It is kept intact and
// returned to the caller alongside the derived features, so only the fields
// the extractor and geometry code read are modelled.
type Response struct {
	Code   string  `json:"code"`
	Routes []Route `json:"routes"`
}

type Route struct {
	Duration float64  `json:"duration"`
	Distance float64  `json:"distance"`
	Geometry Geometry `json:"geometry"`
	Legs     []Leg    `json:"legs"`
}

// Geometry is the GeoJSON LineString of the full route, coordinates as
// (longitude, latitude) pairs.
type Geometry struct {
	Type        string      `json:"type"`
	Coordinates [][]float64 `json:"coordinates"`
}

type Leg struct {
	Summary    string     `json:"summary"`
	Duration   float64    `json:"duration"`
	Distance   float64    `json:"distance"`
	Annotation Annotation `json:"annotation"`
	Steps      []Step     `json:"steps"`
}

type Annotation struct {
	MaxSpeed []MaxSpeed `json:"maxspeed"`
}

// MaxSpeed is a per-segment speed annotation. Segments without posted limits
// come back with Unknown or None set and no Speed.
type MaxSpeed struct {
	Speed   *float64 `json:"speed,omitempty"`
	Unit    string   `json:"unit,omitempty"`
	Unknown bool     `json:"unknown,omitempty"`
	None    bool     `json:"none,omitempty"`
}

type Step struct {
	Name          string         `json:"name"`
	Duration      float64        `json:"duration"`
	Distance      float64        `json:"distance"`
	Intersections []Intersection `json:"intersections"`
}

type Intersection struct {
	Location        []float64        `json:"location"`
	IsUrban         *bool            `json:"is_urban,omitempty"`
	MapboxStreetsV8 *MapboxStreetsV8 `json:"mapbox_streets_v8,omitempty"`
}

type MapboxStreetsV8 struct {
	Class string `json:"class"`
}

type ClientOption func(*Client)

type Client struct {
	token   string
	baseUrl string
}

func TokenOption(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

func BaseUrlOption(baseUrl string) ClientOption {
	return func(c *Client) {
		c.baseUrl = baseUrl
	}
}

func New(opts ...ClientOption) *Client {
	c := &Client{}
	for _, opt := range opts {
		opt(c)
	}

	if c.token == "" {
		panic("Missing token in mapbox client")
	}
	if c.baseUrl == "" {
		c.baseUrl = "https://api.mapbox.com/directions/v5/mapbox/driving"
	}
	return c
}

// Directions fetches the driving route for the trip with full geometry,
// step intersections and maxspeed annotations.
func (c *Client) Directions(ctx context.Context, trip t.Trip) (*Response, error) {
	reqUrl := fmt.Sprintf("%v/%f,%f;%f,%f", c.baseUrl,
		trip.Origin.Longitude, trip.Origin.Latitude,
		trip.Destination.Longitude, trip.Destination.Latitude)
	req, err := url.Parse(reqUrl)
	if err != nil {
		return nil, t.ProviderError{Provider: "mapbox", Msg: fmt.Sprintf("failed to parse url %s", reqUrl), Err: err}
	}

	q := req.Query()
	q.Add("alternatives", "false")
	q.Add("annotations", "maxspeed")
	q.Add("geometries", "geojson")
	q.Add("language", "en")
	q.Add("overview", "full")
	q.Add("steps", "true")
	q.Add("access_token", c.token)
	req.RawQuery = q.Encode()

	ctxReq, _ := http.NewRequestWithContext(ctx, "GET", req.String(), nil)
	resp, err := common.GetWithRetry(ctxReq, "mapbox")
	if err != nil {
		return nil, t.ProviderError{Provider: "mapbox", Msg: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, t.ProviderError{Provider: "mapbox", Msg: "error reading response body", Err: err}
	}

	var respObj Response
	err = json.Unmarshal(body, &respObj)
	if err != nil {
		return nil, t.ProviderError{Provider: "mapbox", Msg: "error unmarshalling response", Err: err}
	}

	if len(respObj.Routes) == 0 {
		return nil, t.ProviderError{Provider: "mapbox", Msg: fmt.Sprintf("no routes in response (code %q)", respObj.Code)}
	}
	return &respObj, nil
}
