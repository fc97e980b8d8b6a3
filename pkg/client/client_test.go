package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MolPrep-Engine/pkg/errors"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]Option{WithRetryWait(time.Millisecond, 5*time.Millisecond)}, opts...)
	client, err := NewClient(server.URL, opts...)
	require.NoError(t, err)
	return client
}

type testLogger struct {
	lastMsg string
	count   int32
}

func (l *testLogger) Debugf(format string, args ...interface{}) { l.log(format, args...) }
func (l *testLogger) Infof(format string, args ...interface{})  { l.log(format, args...) }
func (l *testLogger) Errorf(format string, args ...interface{}) { l.log(format, args...) }
func (l *testLogger) log(format string, args ...interface{}) {
	atomic.AddInt32(&l.count, 1)
	l.lastMsg = fmt.Sprintf(format, args...)
}

// ---------------------------------------------------------------------------
// Constructor Tests
// ---------------------------------------------------------------------------

func TestNewClient_Success(t *testing.T) {
	c, err := NewClient("http://standardizer.example.com")
	assert.NoError(t, err)
	assert.NotNil(t, c)
	assert.Equal(t, "http://standardizer.example.com", c.baseURL)
	assert.Equal(t, 3, c.retryMax)
	assert.Contains(t, c.userAgent, "molprep-go-sdk/")
}

func TestNewClient_EmptyBaseURL(t *testing.T) {
	_, err := NewClient("")
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	_, err := NewClient("ftp://invalid")
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
	_, err = NewClient("invalid-url")
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestNewClient_BaseURLTrailingSlash(t *testing.T) {
	c, err := NewClient("http://standardizer.example.com/")
	assert.NoError(t, err)
	assert.Equal(t, "http://standardizer.example.com", c.baseURL)
}

func TestNewClient_Options(t *testing.T) {
	logger := &testLogger{}
	httpClient := &http.Client{Timeout: time.Second}

	c, err := NewClient("http://standardizer.example.com",
		WithAPIKey("secret"),
		WithLogger(logger),
		WithHTTPClient(httpClient),
		WithRetryMax(1),
		WithUserAgent("custom-agent"))
	require.NoError(t, err)

	assert.Equal(t, "secret", c.apiKey)
	assert.Same(t, httpClient, c.httpClient)
	assert.Equal(t, 1, c.retryMax)
	assert.Equal(t, "custom-agent", c.userAgent)
}

// ---------------------------------------------------------------------------
// Standardize Tests
// ---------------------------------------------------------------------------

func TestStandardize_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/standardize", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var req StandardizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "OCC", req.Smiles)

		json.NewEncoder(w).Encode(StandardizeResponse{Smiles: "CCO", Source: "normalizer"})
	})

	got, err := c.Standardize(context.Background(), "OCC")
	require.NoError(t, err)
	assert.Equal(t, "CCO", got)
}

func TestStandardize_EmptyNotation(t *testing.T) {
	c, err := NewClient("http://standardizer.example.com")
	require.NoError(t, err)

	_, err = c.Standardize(context.Background(), "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestStandardize_EmptyServiceAnswer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(StandardizeResponse{})
	})

	_, err := c.Standardize(context.Background(), "CCO")
	assert.True(t, errors.IsCode(err, errors.ErrCodeStandardizationFailed))
}

func TestStandardize_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"code": "INVALID_SMILES", "message": "unparseable"})
	})

	_, err := c.Standardize(context.Background(), "C(((")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeStandardizationFailed))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "INVALID_SMILES", apiErr.Code)
}

func TestStandardize_ServerErrorIsRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(StandardizeResponse{Smiles: "CCO"})
	})

	got, err := c.Standardize(context.Background(), "OCC")
	require.NoError(t, err)
	assert.Equal(t, "CCO", got)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestStandardize_RetriesExhausted(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithRetryMax(2))

	_, err := c.Standardize(context.Background(), "CCO")
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsServerError())
}

func TestStandardize_ContextCancellation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, WithRetryMax(5), WithRetryWait(time.Hour, time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Standardize(ctx, "CCO")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStandardize_AuthorizationHeader(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(StandardizeResponse{Smiles: "CCO"})
	}, WithAPIKey("secret"))

	_, err := c.Standardize(context.Background(), "CCO")
	assert.NoError(t, err)
}

func TestStandardize_NoAuthorizationHeaderWithoutKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(StandardizeResponse{Smiles: "CCO"})
	})

	_, err := c.Standardize(context.Background(), "CCO")
	assert.NoError(t, err)
}

// ---------------------------------------------------------------------------
// Batch / Health Tests
// ---------------------------------------------------------------------------

func TestStandardizeBatch_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/standardize/batch", r.URL.Path)

		var req BatchStandardizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"OCC", "C(C)C"}, req.Smiles)

		json.NewEncoder(w).Encode(BatchStandardizeResponse{Results: []StandardizeResponse{
			{Smiles: "CCO"},
			{Smiles: "CCC"},
		}})
	})

	got, err := c.StandardizeBatch(context.Background(), []string{"OCC", "C(C)C"})
	require.NoError(t, err)
	assert.Equal(t, []string{"CCO", "CCC"}, got)
}

func TestStandardizeBatch_EmptyInput(t *testing.T) {
	c, err := NewClient("http://standardizer.example.com")
	require.NoError(t, err)

	got, err := c.StandardizeBatch(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestStandardizeBatch_MisalignedResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(BatchStandardizeResponse{Results: []StandardizeResponse{{Smiles: "CCO"}}})
	})

	_, err := c.StandardizeBatch(context.Background(), []string{"OCC", "C(C)C"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeStandardizationFailed))
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/health", r.URL.Path)
		json.NewEncoder(w).Encode(HealthResponse{Status: "ok", Version: "1.2.3"})
	})

	resp, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
}

func TestStandardize_RetryLogsAttempts(t *testing.T) {
	logger := &testLogger{}
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(StandardizeResponse{Smiles: "CCO"})
	}, WithLogger(logger))

	_, err := c.Standardize(context.Background(), "CCO")
	require.NoError(t, err)
	assert.Greater(t, atomic.LoadInt32(&logger.count), int32(0))
}
