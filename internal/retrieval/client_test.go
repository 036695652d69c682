package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsantana84/codex-http/internal/config"
)

func testConfig(baseURL string) config.RetrievalConfig {
	cfg := config.Default().Retrieval
	cfg.BaseURL = baseURL
	cfg.RetryDelay = config.Duration(time.Millisecond)
	return cfg
}

func writeSearchResponse(w http.ResponseWriter, query string, scores ...float64) {
	docs := make([]map[string]any, 0, len(scores))
	for i, s := range scores {
		docs = append(docs, map[string]any{
			"id":       string(rune('a' + i)),
			"content":  "content " + string(rune('a'+i)),
			"metadata": map[string]any{},
			"score":    s,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"documents":     docs,
		"query":         query,
		"total_results": len(docs),
	})
}

func TestSearchFiltersByThreshold(t *testing.T) {
	requests := make(chan searchRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		var req searchRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests <- req
		writeSearchResponse(w, req.Query, 0.9, 0.75, 0.5)
	}))
	defer srv.Close()

	client := New(testConfig(srv.URL))
	resp, err := client.Search(context.Background(), "how do I deploy", nil)
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.Equal(t, searchRequest{Query: "how do I deploy", TopK: 5, Threshold: 0.8}, <-requests)
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, 0.9, resp.Documents[0].Score)
	assert.Equal(t, 3, resp.TotalResults)
}

func TestSearchOptionsOverride(t *testing.T) {
	requests := make(chan searchRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests <- req
		writeSearchResponse(w, req.Query, 0.6)
	}))
	defer srv.Close()

	client := New(testConfig(srv.URL))
	resp, err := client.Search(context.Background(), "q", &SearchOptions{TopK: 2, Threshold: 0.5})
	require.NoError(t, err)

	got := <-requests
	assert.Equal(t, 2, got.TopK)
	assert.Equal(t, 0.5, got.Threshold)
	assert.Len(t, resp.Documents, 1)
}

func TestSearchRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		writeSearchResponse(w, "q", 0.95)
	}))
	defer srv.Close()

	client := New(testConfig(srv.URL))
	resp, err := client.Search(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Len(t, resp.Documents, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSearchExhaustedRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(testConfig(srv.URL))
	resp, err := client.Search(context.Background(), "q", nil)
	assert.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, int32(3), calls.Load(), "retryCount=2 means three attempts")
}

func TestSearchInvalidBodyIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"documents": "nope", "query": "q"}`))
	}))
	defer srv.Close()

	client := New(testConfig(srv.URL))
	_, err := client.Search(context.Background(), "q", nil)
	assert.ErrorIs(t, err, ErrInvalidResponse)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSearchDisabled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Enabled = false
	client := New(cfg)

	resp, err := client.Search(context.Background(), "q", nil)
	assert.NoError(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, "unchanged", client.EnhanceMessage(context.Background(), "unchanged"))
	assert.Equal(t, int32(0), calls.Load())
}

func TestSearchCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeSearchResponse(w, "q", 0.9)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.CacheTTL = config.Duration(time.Minute)
	client := New(cfg)
	defer client.Close()

	for i := 0; i < 3; i++ {
		_, err := client.Search(context.Background(), "q", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())

	_, err := client.Search(context.Background(), "other", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEnhanceMessageFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := New(testConfig(srv.URL))
	msg := "  exact message\nwith lines  "
	assert.Equal(t, msg, client.EnhanceMessage(context.Background(), msg))
}

func TestEnhanceMessageNoDocumentsAboveThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSearchResponse(w, "q", 0.1, 0.2)
	}))
	defer srv.Close()

	client := New(testConfig(srv.URL))
	assert.Equal(t, "q", client.EnhanceMessage(context.Background(), "q"))
}

func TestEnhanceMessageWithContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSearchResponse(w, "q", 0.9)
	}))
	defer srv.Close()

	client := New(testConfig(srv.URL))
	got := client.EnhanceMessage(context.Background(), "what is a?")

	want := "# Retrieved Context Documents\n\n" +
		"The following 1 document(s) were retrieved from the knowledge base:\n\n" +
		"## Document 1 (Relevance: 90.0%)\n" +
		"**Content:**\ncontent a\n\n" +
		"\n---\n\n# User Query\nwhat is a?"
	assert.Equal(t, want, got)
}

func TestHealthCheck(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()
	assert.True(t, New(testConfig(healthy.URL)).HealthCheck(context.Background()))

	sick := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer sick.Close()
	assert.False(t, New(testConfig(sick.URL)).HealthCheck(context.Background()))

	assert.False(t, New(testConfig("http://127.0.0.1:1")).HealthCheck(context.Background()))
}
