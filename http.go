package aiola

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// requester executes HTTP calls and records their outcome.
type requester struct {
	httpClient *http.Client
	logger     zerolog.Logger
	metrics    *metrics
}

// do sends req. Transport-level failures come back as *ConnectionError;
// the caller owns status handling and closing the body.
func (r *requester) do(req *http.Request, endpoint string) (*http.Response, error) {
	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.metrics.observeRequest(endpoint, "error", time.Since(start))
		r.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("request failed")
		return nil, &ConnectionError{Message: "failed to reach " + endpoint, Cause: err}
	}

	r.metrics.observeRequest(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start))
	if resp.StatusCode >= 400 {
		r.logger.Warn().Str("endpoint", endpoint).Int("status", resp.StatusCode).Msg("request rejected")
	} else {
		r.logger.Debug().Str("endpoint", endpoint).Int("status", resp.StatusCode).Msg("request completed")
	}
	return resp, nil
}

// requester returns an HTTP requester for a named component.
func (c *Client) requester(component string) requester {
	return requester{
		httpClient: c.httpClient,
		logger:     c.logger.With().Str("component", component).Logger(),
		metrics:    c.metrics,
	}
}

// bearer sets the access token headers shared by every API call.
func bearer(req *http.Request, accessToken string) {
	req.Header.Set("Authorization", "Bearer "+accessToken)
}
