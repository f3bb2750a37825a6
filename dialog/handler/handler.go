package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/leichangqing/intelligence-intent-sub003/internal/profile"
	"github.com/leichangqing/intelligence-intent-sub003/store"
)

// Result is the outcome of one handler invocation.
type Result struct {
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
	Transient bool           `json:"-"` // network/5xx/timeout failures invite a retry
	ElapsedMS int64          `json:"elapsed_ms"`
}

// Handler executes one action class.
type Handler interface {
	Execute(ctx context.Context, config map[string]any, intent string, slots map[string]string) *Result
}

// Dispatcher routes an intent's configured handler binding to the matching
// handler implementation.
type Dispatcher struct {
	profile  *profile.Profile
	handlers map[store.HandlerType]Handler
}

// NewDispatcher creates a dispatcher with the standard handler set.
func NewDispatcher(p *profile.Profile, s *store.Store) *Dispatcher {
	timeout := time.Duration(p.HandlerDefaultTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		profile: p,
		handlers: map[store.HandlerType]Handler{
			store.HandlerMockService: newMockHandler(),
			store.HandlerAPICall:     newAPIHandler(timeout),
			store.HandlerDatabase:    newDatabaseHandler(s),
		},
	}
}

// Dispatch invokes the intent's bound handler under the configured
// timeout. Dispatch never returns a Go error: failures are folded into the
// Result so the orchestrator can render the failure template uniformly.
func (d *Dispatcher) Dispatch(ctx context.Context, intent *store.IntentDefinition, slots map[string]string) *Result {
	impl, ok := d.handlers[intent.HandlerType]
	if !ok {
		return &Result{Success: false, Error: "未知的处理器类型: " + string(intent.HandlerType)}
	}

	timeout := time.Duration(d.profile.HandlerDefaultTimeoutMS) * time.Millisecond
	if ms, ok := configInt(intent.HandlerConfig, "timeout_ms"); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result := impl.Execute(ctx, intent.HandlerConfig, intent.Name, slots)
	result.ElapsedMS = time.Since(start).Milliseconds()

	if ctx.Err() == context.DeadlineExceeded && !result.Success {
		result.Transient = true
		if result.Error == "" {
			result.Error = "处理超时"
		}
	}
	slog.Debug("handler dispatched",
		"intent", intent.Name, "type", intent.HandlerType,
		"success", result.Success, "elapsed_ms", result.ElapsedMS)
	return result
}

func configInt(config map[string]any, key string) (int, bool) {
	switch v := config[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func configString(config map[string]any, key string) string {
	if s, ok := config[key].(string); ok {
		return s
	}
	return ""
}

func configFloat(config map[string]any, key string) (float64, bool) {
	switch v := config[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
