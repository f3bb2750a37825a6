package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leichangqing/intelligence-intent-sub003/internal/profile"
	"github.com/leichangqing/intelligence-intent-sub003/store"
)

func TestMockHandler_FlightBooking(t *testing.T) {
	h := newMockHandler()
	result := h.Execute(context.Background(), map[string]any{
		"service": "flight_booking",
	}, "book_flight", map[string]string{"departure_city": "北京"})

	require.True(t, result.Success)
	orderID, _ := result.Data["order_id"].(string)
	assert.True(t, strings.HasPrefix(orderID, "FL"))
	assert.Equal(t, "已出票", result.Data["status"])
}

func TestMockHandler_WeatherIsDeterministic(t *testing.T) {
	h := newMockHandler()
	slots := map[string]string{"city": "北京", "date": "2026-08-25"}
	config := map[string]any{"service": "weather"}

	first := h.Execute(context.Background(), config, "check_weather", slots)
	require.True(t, first.Success)
	for i := 0; i < 5; i++ {
		again := h.Execute(context.Background(), config, "check_weather", slots)
		assert.Equal(t, first.Data["weather"], again.Data["weather"])
		assert.Equal(t, first.Data["temperature"], again.Data["temperature"])
	}
}

func TestMockHandler_SampleStableAcrossMapOrder(t *testing.T) {
	slots := map[string]string{
		"departure_city": "北京",
		"arrival_city":   "上海",
		"departure_date": "2026-08-25",
	}
	first := sample("book_flight", slots)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, sample("book_flight", slots))
	}
}

func TestMockHandler_LatencyRespectsContext(t *testing.T) {
	h := newMockHandler()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	result := h.Execute(ctx, map[string]any{
		"service":    "flight_booking",
		"latency_ms": 5000,
	}, "book_flight", nil)

	require.False(t, result.Success)
	assert.True(t, result.Transient)
}

func TestAPIHandler_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "TR888888", payload["order_id"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"已出票"}`))
	}))
	defer server.Close()

	h := newAPIHandler(2 * time.Second)
	result := h.Execute(context.Background(), map[string]any{
		"url":  server.URL,
		"body": `{"order_id":"{order_id}"}`,
	}, "query_order", map[string]string{"order_id": "TR888888"})

	require.True(t, result.Success)
	assert.Equal(t, "已出票", result.Data["status"])
}

func TestAPIHandler_ClientErrorIsNotTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	h := newAPIHandler(2 * time.Second)
	result := h.Execute(context.Background(), map[string]any{"url": server.URL}, "query_order", nil)

	require.False(t, result.Success)
	assert.False(t, result.Transient)
	assert.Contains(t, result.Error, "404")
}

func TestAPIHandler_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Each retry must resend the expanded body.
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"order_id":"TR888888"}`, string(body))

		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"已出票"}`))
	}))
	defer server.Close()

	h := newAPIHandler(5 * time.Second)
	result := h.Execute(context.Background(), map[string]any{
		"url":     server.URL,
		"body":    `{"order_id":"{order_id}"}`,
		"retries": 2,
	}, "query_order", map[string]string{"order_id": "TR888888"})

	require.True(t, result.Success)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAPIHandler_MissingURL(t *testing.T) {
	h := newAPIHandler(time.Second)
	result := h.Execute(context.Background(), map[string]any{}, "query_order", nil)
	assert.False(t, result.Success)
	assert.False(t, result.Transient)
}

func TestDispatcher_MockService(t *testing.T) {
	d := NewDispatcher(&profile.Profile{HandlerDefaultTimeoutMS: 2000}, nil)
	intent := &store.IntentDefinition{
		Name:        "book_train",
		HandlerType: store.HandlerMockService,
		HandlerConfig: map[string]any{
			"service": "train_booking",
		},
	}

	result := d.Dispatch(context.Background(), intent, map[string]string{"departure_city": "北京"})
	require.True(t, result.Success)
	orderID, _ := result.Data["order_id"].(string)
	assert.True(t, strings.HasPrefix(orderID, "TR"))
	assert.GreaterOrEqual(t, result.ElapsedMS, int64(0))
}

func TestDispatcher_UnknownHandlerType(t *testing.T) {
	d := NewDispatcher(&profile.Profile{HandlerDefaultTimeoutMS: 2000}, nil)
	intent := &store.IntentDefinition{Name: "x", HandlerType: store.HandlerType("nope")}

	result := d.Dispatch(context.Background(), intent, nil)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}
