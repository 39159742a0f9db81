package roadrisk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/tarterware/roadrisk/internal/features"
	"github.com/tarterware/roadrisk/internal/geometry"
	"github.com/tarterware/roadrisk/internal/mapbox"
	"github.com/tarterware/roadrisk/internal/ml"
	"github.com/tarterware/roadrisk/internal/nws"
	"github.com/tarterware/roadrisk/internal/temporal"
	t "github.com/tarterware/roadrisk/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://road-risk-playground.tarterware.info:3000",
	"https://road-risk-playground.tarterware.com",
}

const weatherCacheTTL = 10 * time.Minute

// riskParams is the wire shape of a drive-risk query, shared by the POST body
// and the GET query string. Coordinates are hard-rejected before any provider
// call when missing or out of the WGS84 range.
type riskParams struct {
	OLat    *float64 `json:"o_lat" validate:"required,latitude"`
	OLng    *float64 `json:"o_lng" validate:"required,longitude"`
	DLat    *float64 `json:"d_lat" validate:"required,latitude"`
	DLng    *float64 `json:"d_lng" validate:"required,longitude"`
	DateStr string   `json:"date_str"`
}

type riskRequest struct {
	trip    t.Trip
	dateStr string
}

type errorResponse struct {
	Error string `json:"error"`
}

type CodeError struct {
	code int
	msg  string
}

func (c CodeError) Error() string {
	return c.msg
}

type Service struct {
	mb           *mapbox.Client
	nws          *nws.Client
	tc           *temporal.Context
	predictor    ml.Predictor
	rc           *redis.Client
	disableRedis bool
	validate     *validator.Validate
	origins      []string
	port         string

	Logger *zap.SugaredLogger
}

func New() *Service {
	s := &Service{}

	baseLogger, _ := zap.NewProduction()
	defer baseLogger.Sync()
	s.Logger = baseLogger.Sugar()

	s.mb = mapbox.New(
		mapbox.TokenOption(os.Getenv("mapbox_token")),
		mapbox.BaseUrlOption(os.Getenv("mapbox_baseurl")),
	)

	s.nws = nws.New(
		nws.BaseUrlOption(os.Getenv("nws_baseurl")),
	)

	tc, err := temporal.NewContext()
	if err != nil {
		s.Logger.Fatalf("Error initializing temporal context: %v", err.Error())
	}
	s.tc = tc

	predictor, err := ml.Shared(os.Getenv("model_path"), os.Getenv("model_meta_path"))
	if err != nil {
		s.Logger.Fatalf("Error loading risk model: %v", err.Error())
	}
	s.predictor = predictor

	s.rc = redis.NewClient(&redis.Options{
		Addr: os.Getenv("redis_address"),
	})

	disableRedis, err := strconv.ParseBool(os.Getenv("disable_redis"))
	if err == nil {
		s.disableRedis = disableRedis
	}

	s.origins = defaultAllowedOrigins
	if env := os.Getenv("allowed_origins"); env != "" {
		s.origins = strings.Split(env, ",")
	}

	s.port = os.Getenv("port")
	if s.port == "" {
		s.port = "9400"
	}

	s.validate = validator.New()

	return s
}

func (s *Service) Start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/drive-risk", s.DriveRiskHandler)

	_ = http.ListenAndServe(":"+s.port, s.cors(mux))
}

func (s *Service) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range s.origins {
			if origin == allowed || allowed == "*" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "OPTIONS,POST,GET")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Service) DriveRiskHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := s.DriveRisk(r.Context(), r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResponse(w, resp)
}

func (s *Service) DriveRisk(ctx context.Context, r *http.Request) (*t.PredictionResult, error) {
	req, err := s.parseRequest(r)
	if err != nil {
		return nil, err
	}

	directions, err := s.mb.Directions(ctx, req.trip)
	if err != nil {
		s.Logger.Errorw(err.Error(),
			"origin", req.trip.Origin, "destination", req.trip.Destination, "action", "Directions")
		return nil, err
	}
	route := directions.Routes[0]

	// Time-dependent features are anchored at the route's first geometry
	// point, which may differ slightly from the requested origin once snapped
	// to the road network.
	start := req.trip.Origin
	if len(route.Geometry.Coordinates) > 0 && len(route.Geometry.Coordinates[0]) >= 2 {
		start = t.Coordinate{
			Latitude:  route.Geometry.Coordinates[0][1],
			Longitude: route.Geometry.Coordinates[0][0],
		}
	}

	when, err := s.resolveTime(req.dateStr, start)
	if err != nil {
		return nil, err
	}
	window := t.NewTripWindow(when, route.Duration)

	var weather string
	var facts mapbox.Facts
	var curviness float64
	var timeFeatures temporal.Features

	g := new(errgroup.Group)
	g.Go(func() error {
		var err error
		weather, err = s.weatherCategory(ctx, start)
		return err
	})
	g.Go(func() error {
		facts = mapbox.ExtractFacts(directions)
		curviness = geometry.RouteCurviness(route.Geometry.Coordinates, start)
		timeFeatures = s.tc.Features(start, window)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	row := t.FeatureRow{
		RoadType:         facts.RoadType,
		NumLanes:         facts.LaneCount,
		Curvature:        curviness,
		SpeedLimit:       facts.MaxSpeedMPH,
		Lighting:         timeFeatures.Lighting,
		Weather:          weather,
		RoadSignsPresent: facts.RoadSignsPresent,
		PublicRoad:       true,
		TimeOfDay:        timeFeatures.TimeOfDay,
		Holiday:          timeFeatures.Holiday,
		SchoolSeason:     timeFeatures.SchoolSeason,
	}

	engineered, err := features.Engineer(features.FromRows(row), false)
	if err != nil {
		return nil, err
	}

	scores, err := s.predictor.Predict(engineered)
	if err != nil {
		return nil, err
	}

	return &t.PredictionResult{
		Directions:  directions,
		ModelInputs: row,
		Prediction:  scores[0],
	}, nil
}

func (s *Service) parseRequest(r *http.Request) (*riskRequest, error) {
	var p riskParams

	switch r.Method {
	case http.MethodPost:
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			return nil, CodeError{code: 400, msg: "Content-Type must be application/json"}
		}
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			return nil, CodeError{code: 400, msg: fmt.Sprintf("Invalid JSON payload: %v", err.Error())}
		}
	case http.MethodGet:
		q := r.URL.Query()
		for _, key := range []string{"o_lat", "o_lng", "d_lat", "d_lng"} {
			raw := q.Get(key)
			if raw == "" {
				return nil, CodeError{code: 400, msg: "Missing one or more required query parameters"}
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, CodeError{code: 400, msg: fmt.Sprintf("'%v' must be a number", key)}
			}
			switch key {
			case "o_lat":
				p.OLat = &v
			case "o_lng":
				p.OLng = &v
			case "d_lat":
				p.DLat = &v
			case "d_lng":
				p.DLng = &v
			}
		}
		p.DateStr = q.Get("date_str")
	default:
		return nil, CodeError{code: 405, msg: fmt.Sprintf("Method %v not allowed", r.Method)}
	}

	if err := s.validate.Struct(p); err != nil {
		return nil, t.InvalidInputError{Msg: fmt.Sprintf("invalid coordinates: %v", err.Error())}
	}

	return &riskRequest{
		trip: t.Trip{
			Origin:      t.Coordinate{Latitude: *p.OLat, Longitude: *p.OLng},
			Destination: t.Coordinate{Latitude: *p.DLat, Longitude: *p.DLng},
		},
		dateStr: p.DateStr,
	}, nil
}

// resolveTime parses the requested departure time. Naive timestamps are
// wall-clock time in the trip origin's zone; an empty value means now.
func (s *Service) resolveTime(dateStr string, origin t.Coordinate) (time.Time, error) {
	if dateStr == "" {
		return time.Now(), nil
	}
	if ts, err := time.Parse(time.RFC3339, dateStr); err == nil {
		return ts, nil
	}
	loc := s.tc.Zone(origin)
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"} {
		if ts, err := time.ParseInLocation(layout, dateStr, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, t.InvalidInputError{Msg: fmt.Sprintf("unparseable date_str %q", dateStr)}
}

// weatherCategory resolves the coarse weather category at the point, checking
// a short-lived redis cache first so repeated queries from the same area skip
// the two-step NWS lookup.
func (s *Service) weatherCategory(ctx context.Context, coord t.Coordinate) (string, error) {
	key := fmt.Sprintf("wx:%.2f,%.2f", coord.Latitude, coord.Longitude)
	if !s.disableRedis {
		cached, err := s.rc.Get(ctx, key).Result()
		if err != nil && err != redis.Nil {
			s.Logger.Errorf("Redis error fetching weather for (%v, %v): %v",
				coord.Latitude, coord.Longitude, err.Error())
		}
		if cached != "" {
			return cached, nil
		}
	}

	category, err := s.nws.CurrentCategory(ctx, coord)
	if err != nil {
		s.Logger.Errorw(err.Error(),
			"latitude", coord.Latitude, "longitude", coord.Longitude, "action", "CurrentCategory")
		return "", err
	}

	if !s.disableRedis {
		if err := s.rc.Set(ctx, key, category, weatherCacheTTL).Err(); err != nil {
			s.Logger.Warnf("Redis error caching weather for (%v, %v): %v",
				coord.Latitude, coord.Longitude, err.Error())
		}
	}
	return category, nil
}

func (s *Service) writeError(w http.ResponseWriter, err error) {
	var code int
	var invalidInput t.InvalidInputError
	var providerErr t.ProviderError
	var schemaErr t.ModelSchemaError
	var codeErr CodeError

	switch {
	case errors.As(err, &codeErr):
		code = codeErr.code
	case errors.As(err, &invalidInput):
		code = 400
	case errors.As(err, &providerErr):
		code = 502
	case errors.As(err, &schemaErr):
		code = 500
	default:
		w.WriteHeader(500)
		io.WriteString(w, "Internal server error")
		return
	}

	bodyBytes, _ := json.Marshal(errorResponse{Error: err.Error()})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	io.WriteString(w, string(bodyBytes[:]))
}

func (s *Service) writeResponse(w http.ResponseWriter, resp *t.PredictionResult) {
	bodyBytes, _ := json.Marshal(resp)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(200)
	io.WriteString(w, string(bodyBytes[:]))
}
