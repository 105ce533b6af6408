// Package ai is the client for the external recommendation model service.
package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/iliyamo/vkm-portal/internal/model"
)

// ErrRecommendationService wraps every failure of a recommendation call:
// transport errors, non-2xx statuses, undecodable bodies and an open
// circuit.
var ErrRecommendationService = errors.New("recommendation service error")

// recommendPaths are tried in order.  A 404 or a transport error moves on to
// the next path; any other non-2xx status ends the call.
var recommendPaths = []string{
	"/recommend/recommend-explain",
	"/recommend-explain",
	"/recommend/recommend",
	"/recommend",
}

const trainPath = "/train/"

// Query is what the model needs to know about a user.
type Query struct {
	FavoriteIDs []uint64
	Tags        []string
	ProfileText string
}

type requestUser struct {
	FavoriteIDs []uint64 `json:"favorite_ids"`
	Tags        []string `json:"tags,omitempty"`
	ProfileText string   `json:"profile_text,omitempty"`
}

type request struct {
	User requestUser `json:"user"`
	TopN int         `json:"top_n"`
}

type response struct {
	Recommendations []struct {
		ID          uint64         `json:"id"`
		Score       float64        `json:"score"`
		Explanation string         `json:"explanation"`
		Details     map[string]any `json:"details"`
	} `json:"recommendations"`
}

// Client calls the recommendation service over HTTP behind a circuit
// breaker.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
	cb      *gobreaker.CircuitBreaker[[]model.ScoredModule]
	log     *zap.Logger
}

// NewClient builds a Client.  timeout bounds one whole call across all
// fallback paths.
func NewClient(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: timeout,
		http:    &http.Client{},
		log:     log,
	}
	c.cb = gobreaker.NewCircuitBreaker[[]model.ScoredModule](gobreaker.Settings{
		Name:        "recommender",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
			breakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	return c
}

// Recommend asks the model for up to topN modules similar to the query.
func (c *Client) Recommend(ctx context.Context, q Query, topN int) ([]model.ScoredModule, error) {
	body, err := json.Marshal(request{
		User: requestUser{FavoriteIDs: q.FavoriteIDs, Tags: q.Tags, ProfileText: q.ProfileText},
		TopN: topN,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	out, err := c.cb.Execute(func() ([]model.ScoredModule, error) {
		return c.post(ctx, body)
	})
	requestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues("error").Inc()
		if errors.Is(err, ErrRecommendationService) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRecommendationService, err)
	}
	requestsTotal.WithLabelValues("ok").Inc()
	return out, nil
}

func (c *Client) post(ctx context.Context, body []byte) ([]model.ScoredModule, error) {
	var lastErr error
	for _, path := range recommendPaths {
		url := c.baseURL + path
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrRecommendationService, ctx.Err())
			}
			c.log.Debug("recommender request failed", zap.String("url", url), zap.Error(err))
			lastErr = err
			continue
		}
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %v", ErrRecommendationService, err)
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			lastErr = fmt.Errorf("%s returned 404", path)
			continue
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return nil, fmt.Errorf("%w: %s returned %d: %s", ErrRecommendationService, path, resp.StatusCode, truncate(raw, 200))
		}

		var decoded response
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, fmt.Errorf("%w: decode: %v", ErrRecommendationService, err)
		}
		out := make([]model.ScoredModule, 0, len(decoded.Recommendations))
		for _, r := range decoded.Recommendations {
			out = append(out, model.ScoredModule{
				ModuleID:    r.ID,
				Score:       r.Score,
				Explanation: r.Explanation,
				Details:     r.Details,
			})
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: all endpoints failed: %v", ErrRecommendationService, lastErr)
}

// Train hands set to the model service, which retrains in the background.
// It returns the status string the service reports.
func (c *Client) Train(ctx context.Context, set model.TrainingSet) (string, error) {
	body, err := json.Marshal(set)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+trainPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: train: %v", ErrRecommendationService, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrRecommendationService, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %s returned %d: %s", ErrRecommendationService, trainPath, resp.StatusCode, truncate(raw, 200))
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrRecommendationService, err)
	}
	return out.Status, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
