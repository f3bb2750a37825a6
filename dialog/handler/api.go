package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// apiHandler invokes an external HTTP endpoint. Method, URL, headers, and
// the JSON body template all support {slot} placeholder expansion. Any 2xx
// response with a valid JSON body is success; everything else is failure
// with the HTTP status in the error text.
type apiHandler struct {
	client *http.Client
}

func newAPIHandler(timeout time.Duration) *apiHandler {
	return &apiHandler{client: &http.Client{Timeout: timeout}}
}

func (h *apiHandler) Execute(ctx context.Context, config map[string]any, intent string, slots map[string]string) *Result {
	url := ExpandPlaceholders(configString(config, "url"), slots)
	if url == "" {
		return &Result{Success: false, Error: "api_call 缺少 url 配置"}
	}
	method := strings.ToUpper(configString(config, "method"))
	if method == "" {
		method = http.MethodPost
	}

	bodyText := ""
	if bodyTemplate := configString(config, "body"); bodyTemplate != "" {
		bodyText = ExpandPlaceholders(bodyTemplate, slots)
	}

	retries := 0
	if n, ok := configInt(config, "retries"); ok && n > 0 {
		retries = n
	}

	var lastResult *Result
	for attempt := 0; attempt <= retries; attempt++ {
		var body io.Reader
		if bodyText != "" {
			body = bytes.NewBufferString(bodyText)
		}
		lastResult = h.call(ctx, method, url, config, slots, body)
		if lastResult.Success || !lastResult.Transient {
			return lastResult
		}
		if attempt < retries {
			select {
			case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
			case <-ctx.Done():
				return lastResult
			}
		}
	}
	return lastResult
}

func (h *apiHandler) call(ctx context.Context, method, url string, config map[string]any, slots map[string]string, body io.Reader) *Result {
	request, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return &Result{Success: false, Error: fmt.Sprintf("请求构造失败: %v", err)}
	}
	request.Header.Set("Content-Type", "application/json")
	if headers, ok := config["headers"].(map[string]any); ok {
		for name, value := range headers {
			if s, ok := value.(string); ok {
				request.Header.Set(name, ExpandPlaceholders(s, slots))
			}
		}
	}

	response, err := h.client.Do(request)
	if err != nil {
		return &Result{Success: false, Error: fmt.Sprintf("请求失败: %v", err), Transient: true}
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return &Result{Success: false, Error: fmt.Sprintf("读取响应失败: %v", err), Transient: true}
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return &Result{
			Success:   false,
			Error:     fmt.Sprintf("HTTP %d", response.StatusCode),
			Transient: response.StatusCode >= 500,
		}
	}

	data := map[string]any{}
	if err := json.Unmarshal(payload, &data); err != nil {
		return &Result{Success: false, Error: "响应不是有效的 JSON"}
	}
	return &Result{Success: true, Data: data}
}
