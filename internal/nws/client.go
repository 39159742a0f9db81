// Package nws resolves current weather conditions from the National Weather
// Service. The lookup always uses the current short forecast, even when the
// requested trip time is in the past or future; the risk model was trained
// against that behavior, so changing it would break training/inference parity.
package nws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tarterware/roadrisk/internal/common"
	t "github.com/tarterware/roadrisk/internal/types"
)

// Coarse weather categories fed to the model.
const (
	WeatherClear = "clear"
	WeatherRainy = "rainy"
	WeatherFoggy = "foggy"
)

type pointsResponse struct {
	Properties struct {
		GridId string `json:"gridId"`
		GridX  int    `json:"gridX"`
		GridY  int    `json:"gridY"`
	} `json:"properties"`
}

type forecastResponse struct {
	Properties struct {
		Periods []period `json:"periods"`
	} `json:"properties"`
}

type period struct {
	Number        int    `json:"number"`
	Name          string `json:"name"`
	ShortForecast string `json:"shortForecast"`
}

type gridPoint struct {
	Id string
	X  int
	Y  int
}

type ClientOption func(*Client)

type Client struct {
	baseUrl string
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

	if c.baseUrl == "" {
		c.baseUrl = "https://api.weather.gov"
	}
	return c
}

// CurrentCategory resolves the forecast grid containing the coordinate, reads
// the current short forecast for that grid, and maps it to a coarse category.
func (c *Client) CurrentCategory(ctx context.Context, coord t.Coordinate) (string, error) {
	grid, err := c.gridForPoint(ctx, coord)
	if err != nil {
		return "", err
	}

	short, err := c.shortForecast(ctx, grid)
	if err != nil {
		return "", err
	}
	return Category(short), nil
}

func (c *Client) gridForPoint(ctx context.Context, coord t.Coordinate) (gridPoint, error) {
	reqUrl := fmt.Sprintf("%v/points/%v,%v", c.baseUrl, coord.Latitude, coord.Longitude)

	var respObj pointsResponse
	if err := c.getJson(ctx, reqUrl, &respObj); err != nil {
		return gridPoint{}, err
	}
	if respObj.Properties.GridId == "" {
		return gridPoint{}, t.ProviderError{Provider: "nws", Msg: fmt.Sprintf("no forecast grid for (%v, %v)", coord.Latitude, coord.Longitude)}
	}
	return gridPoint{
		Id: respObj.Properties.GridId,
		X:  respObj.Properties.GridX,
		Y:  respObj.Properties.GridY,
	}, nil
}

func (c *Client) shortForecast(ctx context.Context, grid gridPoint) (string, error) {
	reqUrl := fmt.Sprintf("%v/gridpoints/%v/%v,%v/forecast?units=us", c.baseUrl, grid.Id, grid.X, grid.Y)

	var respObj forecastResponse
	if err := c.getJson(ctx, reqUrl, &respObj); err != nil {
		return "", err
	}
	if len(respObj.Properties.Periods) == 0 {
		return "", t.ProviderError{Provider: "nws", Msg: fmt.Sprintf("no forecast periods for grid %v %v,%v", grid.Id, grid.X, grid.Y)}
	}
	return respObj.Properties.Periods[0].ShortForecast, nil
}

func (c *Client) getJson(ctx context.Context, reqUrl string, out interface{}) error {
	ctxReq, _ := http.NewRequestWithContext(ctx, "GET", reqUrl, nil)
	resp, err := common.GetWithRetry(ctxReq, "nws")
	if err != nil {
		return t.ProviderError{Provider: "nws", Msg: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return t.ProviderError{Provider: "nws", Msg: "error reading response body", Err: err}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return t.ProviderError{Provider: "nws", Msg: "error unmarshalling response", Err: err}
	}
	return nil
}

// Category maps a short forecast text to one of the model's three weather
// categories. Anything that isn't fog, rain, storm or snow counts as clear.
func Category(shortForecast string) string {
	switch strings.ToLower(shortForecast) {
	case "fog":
		return WeatherFoggy
	case "rain", "storm", "snow":
		return WeatherRainy
	default:
		return WeatherClear
	}
}
