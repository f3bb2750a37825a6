package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/leichangqing/intelligence-intent-sub003/internal/profile"
	"github.com/leichangqing/intelligence-intent-sub003/store"
)

const classifySystemPrompt = `你是一个意图分类器。根据用户输入和可选意图列表,输出 JSON:
{"top_intent":{"name":"...","confidence":0.0},"alternatives":[{"name":"...","confidence":0.0}],"entities":[{"name":"...","value":"...","confidence":0.0}],"reasoning":"..."}
规则:
- name 必须来自给定的意图列表,无法判断时用 "unknown"。
- confidence 取 0 到 1。
- entities 提取输入中出现的槽位值(城市、日期、数量、邮箱、电话等),name 用意图的槽位名。
- 只输出 JSON,不要额外文本。`

// LLMRecognizer classifies via an OpenAI-compatible chat completion.
type LLMRecognizer struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewLLMRecognizer creates the LLM-backed recognizer from the profile.
func NewLLMRecognizer(p *profile.Profile) *LLMRecognizer {
	clientConfig := openai.DefaultConfig(p.NLUAPIKey)
	if p.NLUBaseURL != "" {
		clientConfig.BaseURL = p.NLUBaseURL
	}
	clientConfig.HTTPClient = &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	timeout := time.Duration(p.NLUTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &LLMRecognizer{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   p.NLUModel,
		timeout: timeout,
	}
}

func (r *LLMRecognizer) Recognize(ctx context.Context, text string, intents []*store.IntentDefinition, history []string) (*Recognition, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: classifySystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: buildClassifyPrompt(text, intents, history)},
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Messages:    messages,
		MaxTokens:   512,
		Temperature: 0,
	})
	if err != nil {
		return nil, errors.Wrap(err, "nlu chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("nlu returned no choices")
	}

	recognition, err := parseRecognition(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	recognition.Source = "llm"
	normalizeRecognition(recognition, intents)
	return recognition, nil
}

func buildClassifyPrompt(text string, intents []*store.IntentDefinition, history []string) string {
	var b strings.Builder
	b.WriteString("可选意图:\n")
	for _, intent := range intents {
		fmt.Fprintf(&b, "- %s (%s): %s", intent.Name, intent.DisplayName, intent.Description)
		if len(intent.Examples) > 0 {
			fmt.Fprintf(&b, " 示例: %s", strings.Join(intent.Examples, " / "))
		}
		b.WriteString("\n")
	}
	if len(history) > 0 {
		b.WriteString("\n最近对话:\n")
		for _, line := range history {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	b.WriteString("\n用户输入: ")
	b.WriteString(text)
	return b.String()
}

// parseRecognition tolerates fenced code blocks around the JSON payload.
func parseRecognition(content string) (*Recognition, error) {
	content = strings.TrimSpace(content)
	if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			content = content[start : end+1]
		}
	}
	recognition := &Recognition{}
	if err := json.Unmarshal([]byte(content), recognition); err != nil {
		return nil, errors.Wrap(err, "failed to parse nlu response")
	}
	return recognition, nil
}

// normalizeRecognition drops candidates not present in the active intent
// set and enforces the candidate ordering: confidence desc, priority desc,
// then name asc.
func normalizeRecognition(recognition *Recognition, intents []*store.IntentDefinition) {
	known := make(map[string]*store.IntentDefinition, len(intents))
	for _, intent := range intents {
		known[intent.Name] = intent
	}

	if recognition.TopIntent.Name != IntentUnknown && known[recognition.TopIntent.Name] == nil {
		recognition.TopIntent = Candidate{Name: IntentUnknown}
	}

	candidates := make([]Candidate, 0, len(recognition.Alternatives)+1)
	if recognition.TopIntent.Name != IntentUnknown {
		candidates = append(candidates, recognition.TopIntent)
	}
	for _, alt := range recognition.Alternatives {
		if alt.Name != recognition.TopIntent.Name && known[alt.Name] != nil {
			candidates = append(candidates, alt)
		}
	}
	SortCandidates(candidates, known)

	if len(candidates) > 0 {
		recognition.TopIntent = candidates[0]
		recognition.Alternatives = candidates[1:]
	} else {
		recognition.TopIntent = Candidate{Name: IntentUnknown}
		recognition.Alternatives = nil
	}
}

// SortCandidates orders by confidence desc, then intent priority desc,
// then lexicographically by name.
func SortCandidates(candidates []Candidate, intents map[string]*store.IntentDefinition) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		var pi, pj int32
		if intent := intents[candidates[i].Name]; intent != nil {
			pi = intent.Priority
		}
		if intent := intents[candidates[j].Name]; intent != nil {
			pj = intent.Priority
		}
		if pi != pj {
			return pi > pj
		}
		return candidates[i].Name < candidates[j].Name
	})
}
