package nlu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leichangqing/intelligence-intent-sub003/store"
)

func ruleIntents() []*store.IntentDefinition {
	return []*store.IntentDefinition{
		{
			Name:     "book_flight",
			Priority: 10,
			Examples: []string{"我要订机票", "帮我订一张去上海的机票", "买明天的机票"},
		},
		{
			Name:     "book_train",
			Priority: 9,
			Examples: []string{"订火车票", "买一张高铁票"},
		},
		{
			Name:     "check_weather",
			Priority: 5,
			Examples: []string{"明天北京天气怎么样", "查一下上海的天气"},
		},
	}
}

func TestRuleRecognizer_ExactExample(t *testing.T) {
	r := NewRuleRecognizer()
	recognition, err := r.Recognize(context.Background(), "我要订机票", ruleIntents(), nil)
	require.NoError(t, err)

	assert.Equal(t, "book_flight", recognition.TopIntent.Name)
	assert.InDelta(t, 0.95, recognition.TopIntent.Confidence, 1e-9)
	assert.Equal(t, "rule", recognition.Source)
}

func TestRuleRecognizer_PartialMatch(t *testing.T) {
	r := NewRuleRecognizer()
	recognition, err := r.Recognize(context.Background(), "帮我查一下上海的天气好吗", ruleIntents(), nil)
	require.NoError(t, err)

	assert.Equal(t, "check_weather", recognition.TopIntent.Name)
	assert.Greater(t, recognition.TopIntent.Confidence, 0.5)
}

func TestRuleRecognizer_NoMatch(t *testing.T) {
	r := NewRuleRecognizer()
	recognition, err := r.Recognize(context.Background(), "blablabla", ruleIntents(), nil)
	require.NoError(t, err)

	assert.Equal(t, IntentUnknown, recognition.TopIntent.Name)
	assert.Empty(t, recognition.Alternatives)
}

func TestSortCandidates(t *testing.T) {
	intents := map[string]*store.IntentDefinition{
		"book_flight": {Name: "book_flight", Priority: 10},
		"book_train":  {Name: "book_train", Priority: 9},
	}
	candidates := []Candidate{
		{Name: "book_train", Confidence: 0.80},
		{Name: "book_flight", Confidence: 0.80},
		{Name: "check_weather", Confidence: 0.90},
	}
	SortCandidates(candidates, intents)

	// Confidence first, then intent priority breaks ties.
	assert.Equal(t, "check_weather", candidates[0].Name)
	assert.Equal(t, "book_flight", candidates[1].Name)
	assert.Equal(t, "book_train", candidates[2].Name)
}

func TestExtractEntities(t *testing.T) {
	entities := ExtractEntities("从北京到上海,明天出发,3个人")

	byName := map[string]Entity{}
	for _, e := range entities {
		byName[e.Name] = e
	}
	assert.Equal(t, "北京", byName["departure_city"].Value)
	assert.Equal(t, "上海", byName["arrival_city"].Value)
	assert.Equal(t, "明天", byName["departure_date"].Value)
	assert.Equal(t, "3", byName["passenger_count"].Value)
}

func TestExtractEntities_CityTail(t *testing.T) {
	entities := ExtractEntities("去上海")
	require.Len(t, entities, 1)
	assert.Equal(t, "arrival_city", entities[0].Name)
	assert.Equal(t, "上海", entities[0].Value)
}

func TestExtractEntities_ContactAndOrder(t *testing.T) {
	entities := ExtractEntities("订单号 FL12345678,手机 13812345678,邮箱 user@example.com")

	byName := map[string]Entity{}
	for _, e := range entities {
		byName[e.Name] = e
	}
	assert.Equal(t, "FL12345678", byName["order_id"].Value)
	assert.Equal(t, "13812345678", byName["phone"].Value)
	assert.Equal(t, "user@example.com", byName["email"].Value)
}

func TestExtractEntities_None(t *testing.T) {
	assert.Empty(t, ExtractEntities("你好"))
}
