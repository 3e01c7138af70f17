package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clapd/clapd/internal/detectorerr"
)

func TestSendSucceedsOnFirstAttempt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(nil)
	err := d.Send(context.Background(), srv.URL, Payload{Event: "test", Source: "mic:0", Timestamp: 1, Score: 0.9, Test: true})
	require.NoError(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestSendRetriesOnServiceUnavailableThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(nil)
	err := d.Send(context.Background(), srv.URL, Payload{Event: "clap_detected", Source: "mic:0", Timestamp: 1, Score: 0.9})
	require.NoError(t, err)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestSendExhaustsRetryBudget(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := New(nil)
	err := d.Send(context.Background(), srv.URL, Payload{Event: "clap_detected", Source: "mic:0", Timestamp: 1, Score: 0.9})
	require.Error(t, err)
	require.True(t, detectorerr.Is(err, detectorerr.WebhookError))
	require.EqualValues(t, maxAttempts, atomic.LoadInt32(&calls))
}

func TestSendDoesNotRetryOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	d := New(nil)
	err := d.Send(context.Background(), srv.URL, Payload{Event: "clap_detected", Source: "mic:0", Timestamp: 1, Score: 0.9})
	require.Error(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestClientForReusesClientPerHost(t *testing.T) {
	d := New(nil)
	a := d.clientFor("http://example.com/one")
	b := d.clientFor("http://example.com/two")
	c := d.clientFor("http://other.com/three")
	require.Same(t, a, b)
	require.NotSame(t, a, c)
}
