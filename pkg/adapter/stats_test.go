package adapter_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/chatterbox/pkg/adapter"
	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/gt"
)

type visitorCacheMock struct {
	count int64
	at    time.Time
	ok    bool
	saved int
}

func (m *visitorCacheMock) VisitorCount(ctx context.Context) (int64, time.Time, bool) {
	return m.count, m.at, m.ok
}

func (m *visitorCacheMock) SetVisitorCount(ctx context.Context, count int64, at time.Time) {
	m.count, m.at, m.ok = count, at, true
	m.saved++
}

func TestStatsRegisterUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.URL.Path, "/api/registerUser")
		var body map[string]string
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gt.Equal(t, body["userId"], "abc123xyz")
		_, _ = w.Write([]byte(`{"status":"registered"}`))
	}))
	defer srv.Close()

	stats := adapter.NewStats(srv.URL)
	status, err := stats.RegisterUser(context.Background(), model.UserID("abc123xyz"))
	gt.NoError(t, err)
	gt.Equal(t, status, "registered")
}

func TestStatsVisitorCountIsCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.URL.Path, "/api/visitors")
		hits.Add(1)
		_, _ = w.Write([]byte(`{"total":1234}`))
	}))
	defer srv.Close()

	persist := &visitorCacheMock{}
	stats := adapter.NewStats(srv.URL, adapter.WithVisitorCache(persist))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		n, err := stats.VisitorCount(ctx)
		gt.NoError(t, err)
		gt.Equal(t, n, int64(1234))
	}
	gt.Equal(t, hits.Load(), int32(1))
	gt.Equal(t, persist.saved, 1)
	gt.Equal(t, persist.count, int64(1234))
}

func TestStatsVisitorCountUsesPersistedCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"total":99}`))
	}))
	defer srv.Close()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("fresh entry is served", func(t *testing.T) {
		persist := &visitorCacheMock{count: 500, at: now.Add(-time.Minute), ok: true}
		stats := adapter.NewStats(srv.URL, adapter.WithVisitorCache(persist), adapter.WithStatsClock(func() time.Time { return now }))
		n, err := stats.VisitorCount(ctx)
		gt.NoError(t, err)
		gt.Equal(t, n, int64(500))
		gt.Equal(t, hits.Load(), int32(0))
	})

	t.Run("stale entry is refreshed", func(t *testing.T) {
		persist := &visitorCacheMock{count: 500, at: now.Add(-6 * time.Minute), ok: true}
		stats := adapter.NewStats(srv.URL, adapter.WithVisitorCache(persist), adapter.WithStatsClock(func() time.Time { return now }))
		n, err := stats.VisitorCount(ctx)
		gt.NoError(t, err)
		gt.Equal(t, n, int64(99))
		gt.Equal(t, persist.at, now)
	})
}

func TestPrettyNumber(t *testing.T) {
	testCases := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1500, "1.50K"},
		{123456, "123K"},
		{2_500_000, "2.50M"},
		{350_000_000, "350M"},
		{1_000_000_000, "1.00B"},
		{-2000, "-2.00K"},
	}
	for _, tc := range testCases {
		gt.Equal(t, adapter.PrettyNumber(tc.in), tc.want)
	}
}
