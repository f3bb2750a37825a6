package handler

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

// mockHandler simulates a downstream service with configurable latency and
// success rate. Success sampling is deterministic per (intent, slots) so
// repeated turns behave consistently.
type mockHandler struct{}

func newMockHandler() *mockHandler {
	return &mockHandler{}
}

func (h *mockHandler) Execute(ctx context.Context, config map[string]any, intent string, slots map[string]string) *Result {
	if ms, ok := configInt(config, "latency_ms"); ok && ms > 0 {
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-ctx.Done():
			return &Result{Success: false, Error: "处理超时", Transient: true}
		}
	}

	if rate, ok := configFloat(config, "success_rate"); ok && rate < 1 {
		if sample(intent, slots) > rate {
			return &Result{Success: false, Error: "服务暂时不可用", Transient: true}
		}
	}

	service := configString(config, "service")
	if service == "" {
		service = configString(config, "service_name")
	}
	return &Result{Success: true, Data: mockData(service, slots)}
}

// sample hashes the call identity into [0,1). Keys are sorted so the
// sample is stable across map iteration orders.
func sample(intent string, slots map[string]string) float64 {
	keys := make([]string, 0, len(slots))
	for k := range slots {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	hash := fnv.New32a()
	hash.Write([]byte(intent))
	for _, k := range keys {
		hash.Write([]byte(k))
		hash.Write([]byte(slots[k]))
	}
	return float64(hash.Sum32()%1000) / 1000.0
}

func mockData(service string, slots map[string]string) map[string]any {
	switch {
	case strings.Contains(service, "flight"):
		return map[string]any{
			"order_id": "FL" + strings.ToUpper(shortuuid.New()[:8]),
			"status":   "已出票",
		}
	case strings.Contains(service, "train"):
		return map[string]any{
			"order_id": "TR" + strings.ToUpper(shortuuid.New()[:8]),
			"status":   "已出票",
		}
	case strings.Contains(service, "weather"):
		return map[string]any{
			"weather":     pickWeather(slots["city"] + slots["date"]),
			"temperature": fmt.Sprintf("%d°C", 15+int(sampleString(slots["city"])%15)),
		}
	default:
		return map[string]any{"result": "ok"}
	}
}

var weatherKinds = []string{"晴", "多云", "小雨", "阴"}

func pickWeather(seed string) string {
	return weatherKinds[sampleString(seed)%uint32(len(weatherKinds))]
}

func sampleString(s string) uint32 {
	hash := fnv.New32a()
	hash.Write([]byte(s))
	return hash.Sum32()
}
