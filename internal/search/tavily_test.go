package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTavily(t *testing.T, handler http.HandlerFunc) *Tavily {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewTavily("tvly-test", nil)
	require.NoError(t, err)
	c.SetEndpoint(srv.URL)
	return c
}

func TestNewTavilyRequiresKey(t *testing.T) {
	_, err := NewTavily("  ", nil)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestLookupAnswer(t *testing.T) {
	var req tavilyReq
	c := newTestTavily(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Write([]byte(`{"answer":"Steam shader cache","results":[{"content":"ignored"}]}`))
	})

	got, err := c.Lookup(context.Background(), "shadercache")
	require.NoError(t, err)
	assert.Equal(t, "Steam shader cache", got)

	assert.Equal(t, "tvly-test", req.APIKey)
	assert.Contains(t, req.Query, `"shadercache"`)
	assert.Equal(t, "basic", req.SearchDepth)
	assert.True(t, req.IncludeAnswer)
	assert.Equal(t, 3, req.MaxResults)
}

func TestLookupFallsBackToResults(t *testing.T) {
	c := newTestTavily(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"answer":"","results":[{"content":"first"},{"content":""},{"content":"third"}]}`))
	})

	got, err := c.Lookup(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "Result 1: first\nResult 3: third", got)
}

func TestLookupNoResults(t *testing.T) {
	c := newTestTavily(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	})

	got, err := c.Lookup(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, NoResults, got)
}

func TestLookupError(t *testing.T) {
	c := newTestTavily(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, err := c.Lookup(context.Background(), "x")
	assert.Error(t, err)
}

func TestLookupCached(t *testing.T) {
	var calls atomic.Int32
	c := newTestTavily(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"answer":"a thing"}`))
	})

	for i := 0; i < 3; i++ {
		got, err := c.Lookup(context.Background(), "Thing")
		require.NoError(t, err)
		assert.Equal(t, "a thing", got)
	}
	_, err := c.Lookup(context.Background(), "thing ")
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
}
