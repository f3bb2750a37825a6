// Package kb queries an external knowledge base when no intent matches
// and no structured flow is in progress.
package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/leichangqing/intelligence-intent-sub003/internal/profile"
)

// Answer is a knowledge base response.
type Answer struct {
	Answer     string   `json:"answer"`
	Sources    []string `json:"sources,omitempty"`
	Confidence float64  `json:"confidence"`
	ElapsedMS  int64    `json:"elapsed_ms"`
}

// Client talks to the configured knowledge base endpoint. A nil base URL
// disables the fallback entirely.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a knowledge base client from the profile.
func NewClient(p *profile.Profile) *Client {
	timeout := time.Duration(p.KBTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: p.KBBaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a knowledge base endpoint is configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

type queryRequest struct {
	Question string            `json:"question"`
	Context  map[string]string `json:"context,omitempty"`
}

// Query sends the user text to the knowledge base and returns its answer.
func (c *Client) Query(ctx context.Context, text string, contextValues map[string]string) (*Answer, error) {
	if !c.Enabled() {
		return nil, errors.New("knowledge base is not configured")
	}

	payload, err := json.Marshal(queryRequest{Question: text, Context: contextValues})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal kb request")
	}

	start := time.Now()
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build kb request")
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.client.Do(request)
	if err != nil {
		return nil, errors.Wrap(err, "kb request failed")
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read kb response")
	}
	if response.StatusCode != http.StatusOK {
		return nil, errors.Errorf("kb returned HTTP %d", response.StatusCode)
	}

	answer := &Answer{}
	if err := json.Unmarshal(body, answer); err != nil {
		return nil, errors.Wrap(err, "failed to parse kb response")
	}
	answer.ElapsedMS = time.Since(start).Milliseconds()
	return answer, nil
}
