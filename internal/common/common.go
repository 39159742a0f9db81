package common

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

var client = &http.Client{Timeout: 15 * time.Second}

var (
	breakerMu sync.Mutex
	breakers  = map[string]*gobreaker.CircuitBreaker{}
)

func breakerFor(name string) *gobreaker.CircuitBreaker {
	breakerMu.Lock()
	defer breakerMu.Unlock()
	cb, ok := breakers[name]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
		})
		breakers[name] = cb
	}
	return cb
}

// GetWithRetry performs the request through a per-provider circuit breaker,
// retrying transient failures up to 3 times with exponential backoff.
func GetWithRetry(req *http.Request, name string) (*http.Response, error) {
	cb := breakerFor(name)

	var resp *http.Response
	var err error

	backoff := 500 * time.Millisecond
	validResp, retries := false, 3
	for !validResp {
		var result interface{}
		result, err = cb.Execute(func() (interface{}, error) {
			r, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			if r.StatusCode < 200 || r.StatusCode > 299 {
				r.Body.Close()
				return nil, fmt.Errorf("error code %v returned from %v", r.StatusCode, name)
			}
			return r, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || retries <= 1 {
				return nil, fmt.Errorf("error on %v api request: %w", name, err)
			}
			retries--
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		resp = result.(*http.Response)
		validResp = true
	}
	return resp, nil
}
