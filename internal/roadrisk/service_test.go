package roadrisk

import (
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/tarterware/roadrisk/internal/features"
	"github.com/tarterware/roadrisk/internal/mapbox"
	"github.com/tarterware/roadrisk/internal/nws"
	"github.com/tarterware/roadrisk/internal/temporal"
	"github.com/tarterware/roadrisk/internal/types"
	"go.uber.org/zap"
)

// A White House to Washington Monument route with one leg: urban markers, a
// primary-class intersection and a 40 km/h posted limit.
const directionsFixture = `{
	"code": "Ok",
	"routes": [{
		"duration": 600,
		"distance": 1200,
		"geometry": {
			"type": "LineString",
			"coordinates": [
				[-77.0365, 38.8977],
				[-77.0362, 38.8950],
				[-77.0358, 38.8920],
				[-77.0353, 38.8895]
			]
		},
		"legs": [{
			"duration": 600,
			"annotation": {"maxspeed": [
				{"speed": 40, "unit": "km/h"},
				{"unknown": true}
			]},
			"steps": [{
				"intersections": [
					{"location": [-77.0365, 38.8977], "is_urban": true},
					{"location": [-77.0358, 38.8920], "mapbox_streets_v8": {"class": "primary"}}
				]
			}]
		}]
	}]
}`

type stubPredictor struct {
	score     float64
	lastTable *features.Table
}

func (p *stubPredictor) Predict(tbl *features.Table) ([]float64, error) {
	p.lastTable = tbl
	scores := make([]float64, tbl.NumRows())
	for i := range scores {
		scores[i] = p.score
	}
	return scores, nil
}

func newFixtureServers(t *testing.T) (mapboxUrl, nwsUrl string) {
	t.Helper()

	mapboxSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, directionsFixture)
	}))
	t.Cleanup(mapboxSrv.Close)

	mux := http.NewServeMux()
	mux.HandleFunc("/points/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"properties": {"gridId": "LWX", "gridX": 96, "gridY": 70}}`)
	})
	mux.HandleFunc("/gridpoints/LWX/96,70/forecast", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"properties": {"periods": [{"number": 1, "shortForecast": "Sunny"}]}}`)
	})
	nwsSrv := httptest.NewServer(mux)
	t.Cleanup(nwsSrv.Close)

	return mapboxSrv.URL, nwsSrv.URL
}

func newTestService(t *testing.T, predictor *stubPredictor) *Service {
	t.Helper()

	mapboxUrl, nwsUrl := newFixtureServers(t)
	tc, err := temporal.NewContext()
	if err != nil {
		t.Fatalf("unexpected error building temporal context: %v", err)
	}

	return &Service{
		mb:           mapbox.New(mapbox.TokenOption("test-token"), mapbox.BaseUrlOption(mapboxUrl)),
		nws:          nws.New(nws.BaseUrlOption(nwsUrl)),
		tc:           tc,
		predictor:    predictor,
		disableRedis: true,
		validate:     validator.New(),
		origins:      defaultAllowedOrigins,
		Logger:       zap.NewNop().Sugar(),
	}
}

func TestDriveRiskJulyFourth(t *testing.T) {
	predictor := &stubPredictor{score: 0.42}
	s := newTestService(t, predictor)

	r := httptest.NewRequest(http.MethodGet,
		"/drive-risk?o_lat=38.8977&o_lng=-77.0365&d_lat=38.8895&d_lng=-77.0353&date_str=2024-07-04T09:00:00", nil)

	resp, err := s.DriveRisk(r.Context(), r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	inputs := resp.ModelInputs
	if !inputs.Holiday {
		t.Error("expected July 4 2024 to resolve as a holiday")
	}
	if inputs.SchoolSeason {
		t.Error("expected July to be out of school season")
	}
	if inputs.RoadType != mapbox.RoadTypeHighway {
		t.Errorf("road_type = %q, expected highway (primary class outranks urban marker)", inputs.RoadType)
	}
	if inputs.NumLanes != 2 {
		t.Errorf("num_lanes = %d, expected 2", inputs.NumLanes)
	}
	if inputs.Weather != nws.WeatherClear {
		t.Errorf("weather = %q, expected clear for a sunny forecast", inputs.Weather)
	}
	if inputs.TimeOfDay != temporal.TimeMorning {
		t.Errorf("time_of_day = %q, expected morning for a 9am trip", inputs.TimeOfDay)
	}
	if inputs.Lighting != temporal.LightDaylight {
		t.Errorf("lighting = %q, expected daylight at 9am in July", inputs.Lighting)
	}
	if !inputs.RoadSignsPresent {
		t.Error("expected road signs with an urban marker present")
	}
	if !inputs.PublicRoad {
		t.Error("expected public_road to be true")
	}
	if expected := 40 / 1.60934; math.Abs(inputs.SpeedLimit-expected) > 1e-9 {
		t.Errorf("speed_limit = %v, expected %v", inputs.SpeedLimit, expected)
	}

	if resp.Prediction != 0.42 {
		t.Errorf("prediction = %v, expected stub score", resp.Prediction)
	}
	if resp.Directions == nil {
		t.Error("expected raw directions payload in the response")
	}

	// The predictor must have received the engineered table, categoricals marked.
	if predictor.lastTable == nil {
		t.Fatal("predictor never called")
	}
	for _, col := range features.CategoricalColumns {
		if !predictor.lastTable.IsCategorical(col) {
			t.Errorf("expected %q marked categorical in the engineered table", col)
		}
	}
	if v := predictor.lastTable.Value("holiday", 0); v != 1 {
		t.Errorf("engineered holiday = %v, expected 1", v)
	}
}

func TestDriveRiskHandlerRejectsOutOfRangeCoordinates(t *testing.T) {
	s := newTestService(t, &stubPredictor{})

	r := httptest.NewRequest(http.MethodGet,
		"/drive-risk?o_lat=95.0&o_lng=-77.0365&d_lat=38.8895&d_lng=-77.0353", nil)
	w := httptest.NewRecorder()
	s.DriveRiskHandler(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range latitude, got %d", w.Code)
	}
}

func TestDriveRiskHandlerRejectsMissingParams(t *testing.T) {
	s := newTestService(t, &stubPredictor{})

	r := httptest.NewRequest(http.MethodGet, "/drive-risk?o_lat=38.8977", nil)
	w := httptest.NewRecorder()
	s.DriveRiskHandler(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing parameters, got %d", w.Code)
	}
}

func TestDriveRiskHandlerPost(t *testing.T) {
	s := newTestService(t, &stubPredictor{score: 0.1})

	body := `{"o_lat": 38.8977, "o_lng": -77.0365, "d_lat": 38.8895, "d_lng": -77.0353, "date_str": "2024-07-04T09:00:00"}`
	r := httptest.NewRequest(http.MethodPost, "/drive-risk", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.DriveRiskHandler(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDriveRiskHandlerPostRequiresJson(t *testing.T) {
	s := newTestService(t, &stubPredictor{})

	r := httptest.NewRequest(http.MethodPost, "/drive-risk", strings.NewReader("o_lat=38.9"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.DriveRiskHandler(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-JSON POST, got %d", w.Code)
	}
}

func TestResolveTimeUnparseable(t *testing.T) {
	s := newTestService(t, &stubPredictor{})

	origin := types.Coordinate{Latitude: 38.8977, Longitude: -77.0365}
	if _, err := s.resolveTime("not-a-date", origin); err == nil {
		t.Fatal("expected error for unparseable date_str")
	}
}
