package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/patrickmn/go-cache"
)

const (
	DefaultAPIEndpoint = "https://unityailab.com"

	visitorCacheTTL = 5 * time.Minute
	visitorCacheKey = "visitors"
)

// VisitorCache persists the last known visitor count between runs
type VisitorCache interface {
	VisitorCount(ctx context.Context) (int64, time.Time, bool)
	SetVisitorCount(ctx context.Context, count int64, at time.Time)
}

// Stats talks to the registration and visitor counting API
type Stats struct {
	client   *http.Client
	endpoint string
	cache    *cache.Cache
	persist  VisitorCache
	now      func() time.Time
}

type StatsOption func(*Stats)

func WithStatsHTTPClient(client *http.Client) StatsOption {
	return func(s *Stats) {
		s.client = client
	}
}

func WithVisitorCache(c VisitorCache) StatsOption {
	return func(s *Stats) {
		s.persist = c
	}
}

func WithStatsClock(now func() time.Time) StatsOption {
	return func(s *Stats) {
		s.now = now
	}
}

func NewStats(endpoint string, opts ...StatsOption) *Stats {
	if endpoint == "" {
		endpoint = DefaultAPIEndpoint
	}
	s := &Stats{
		client:   &http.Client{Timeout: 10 * time.Second},
		endpoint: strings.TrimSuffix(endpoint, "/"),
		cache:    cache.New(visitorCacheTTL, 10*time.Minute),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterUser reports a user id and returns the server status, "registered" or "exists"
func (s *Stats) RegisterUser(ctx context.Context, id model.UserID) (string, error) {
	body, err := json.Marshal(map[string]string{"userId": string(id)})
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal registration")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/api/registerUser", bytes.NewReader(body))
	if err != nil {
		return "", goerr.Wrap(err, "failed to create registration request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", goerr.Wrap(err, "failed to register user", goerr.V("user_id", id))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", goerr.Wrap(model.ErrRemoteStatus, "registration failed", goerr.V("status", resp.StatusCode))
	}

	var result struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", goerr.Wrap(err, "invalid registration response")
	}
	return result.Status, nil
}

// VisitorCount returns the total number of registered users. Results are cached for
// five minutes in process and in the persisted visitor cache.
func (s *Stats) VisitorCount(ctx context.Context) (int64, error) {
	if v, ok := s.cache.Get(visitorCacheKey); ok {
		return v.(int64), nil
	}
	if s.persist != nil {
		if count, at, ok := s.persist.VisitorCount(ctx); ok {
			if remain := visitorCacheTTL - s.now().Sub(at); remain > 0 {
				s.cache.Set(visitorCacheKey, count, remain)
				return count, nil
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/api/visitors", nil)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to create visitors request")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to fetch visitor count")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, goerr.Wrap(model.ErrRemoteStatus, "visitors request failed", goerr.V("status", resp.StatusCode))
	}

	var result struct {
		Total int64 `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, goerr.Wrap(err, "invalid visitors response")
	}

	s.cache.Set(visitorCacheKey, result.Total, cache.DefaultExpiration)
	if s.persist != nil {
		s.persist.SetVisitorCount(ctx, result.Total, s.now())
	}
	return result.Total, nil
}

// PrettyNumber abbreviates large counts: two decimals below a hundred units, none above
func PrettyNumber(n int64) string {
	abs := n
	if abs < 0 {
		abs = -abs
	}

	for _, u := range []struct {
		size   int64
		suffix string
	}{
		{1_000_000_000, "B"},
		{1_000_000, "M"},
		{1_000, "K"},
	} {
		if abs < u.size {
			continue
		}
		prec := 2
		if abs >= u.size*100 {
			prec = 0
		}
		return strconv.FormatFloat(float64(n)/float64(u.size), 'f', prec, 64) + u.suffix
	}
	return strconv.FormatInt(n, 10)
}
