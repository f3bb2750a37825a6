package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	out := Render("已为您预订 {departure_date} 从 {departure_city} 到 {arrival_city} 的机票。", map[string]any{
		"departure_date": "2026-08-25",
		"departure_city": "北京",
		"arrival_city":   "上海",
	})
	assert.Equal(t, "已为您预订 2026-08-25 从 北京 到 上海 的机票。", out)
}

func TestRender_UnknownPlaceholderKept(t *testing.T) {
	out := Render("订单 {order_id} 状态 {status}", map[string]any{"order_id": "FL123456"})
	assert.Equal(t, "订单 FL123456 状态 {status}", out)
}

func TestRender_Coercion(t *testing.T) {
	out := Render("{count} 人,费用 {price},明细 {detail}", map[string]any{
		"count":  float64(3),
		"price":  99.5,
		"detail": map[string]any{"cabin": "Y"},
	})
	assert.Equal(t, `3 人,费用 99.5,明细 {"cabin":"Y"}`, out)
}

func TestMergeValues(t *testing.T) {
	merged := MergeValues(
		map[string]any{"a": "1", "b": "2"},
		map[string]any{"b": "3", "c": "4"},
	)
	assert.Equal(t, map[string]any{"a": "1", "b": "3", "c": "4"}, merged)
}

func TestRenderSuccess(t *testing.T) {
	values := map[string]any{
		"order_id":       "FL123456",
		"departure_date": "2026-08-25",
		"departure_city": "北京",
		"arrival_city":   "上海",
	}

	// Configured template wins.
	out := RenderSuccess("book_flight", "订单 {order_id} 已出票。", values)
	assert.Equal(t, "订单 FL123456 已出票。", out)

	// Without a template the builtin formatter applies.
	out = RenderSuccess("book_flight", "", values)
	assert.Contains(t, out, "FL123456")
	assert.Contains(t, out, "北京")

	// Unknown intent without a template falls back to the generic line.
	out = RenderSuccess("something_else", "", nil)
	assert.Equal(t, genericSuccess, out)
}

func TestRenderFailure(t *testing.T) {
	out := RenderFailure("机票预订失败:{error_message}。", "服务暂时不可用", nil)
	assert.Equal(t, "机票预订失败:服务暂时不可用。", out)

	out = RenderFailure("", "超时", nil)
	assert.Contains(t, out, "超时")
}

func TestExpandPlaceholders(t *testing.T) {
	out := ExpandPlaceholders("https://api.example.com/orders/{order_id}", map[string]string{"order_id": "TR888888"})
	assert.Equal(t, "https://api.example.com/orders/TR888888", out)
}
