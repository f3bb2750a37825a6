// Package handler dispatches intent actions (mock, HTTP, database) and
// renders response templates.
package handler

import (
	"encoding/json"
	"fmt"
	"regexp"
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Render substitutes {name} placeholders lexically. Unknown tokens are
// left verbatim; structured values are coerced to a string representation.
func Render(template string, values map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		name := token[1 : len(token)-1]
		value, ok := values[name]
		if !ok {
			return token
		}
		return coerce(value)
	})
}

// MergeValues layers value maps; later maps win on key conflicts.
func MergeValues(maps ...map[string]any) map[string]any {
	merged := map[string]any{}
	for _, m := range maps {
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged
}

// StringValues widens a string map for rendering.
func StringValues(m map[string]string) map[string]any {
	values := make(map[string]any, len(m))
	for k, v := range m {
		values[k] = v
	}
	return values
}

func coerce(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	case map[string]any, []any:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// builtinFormatters render a success response when an intent carries no
// configured success template (or only the generic default).
var builtinFormatters = map[string]func(values map[string]any) string{
	"book_flight": func(values map[string]any) string {
		return fmt.Sprintf("机票预订成功,订单号 %s,%s 从 %s 飞往 %s。",
			coerce(values["order_id"]), coerce(values["departure_date"]),
			coerce(values["departure_city"]), coerce(values["arrival_city"]))
	},
	"book_train": func(values map[string]any) string {
		return fmt.Sprintf("火车票预订成功,订单号 %s,%s 从 %s 到 %s。",
			coerce(values["order_id"]), coerce(values["departure_date"]),
			coerce(values["departure_city"]), coerce(values["arrival_city"]))
	},
	"check_weather": func(values map[string]any) string {
		return fmt.Sprintf("%s %s 天气 %s,气温 %s。",
			coerce(values["city"]), coerce(values["date"]),
			coerce(values["weather"]), coerce(values["temperature"]))
	},
	"query_order": func(values map[string]any) string {
		return fmt.Sprintf("订单 %s 当前状态: %s。",
			coerce(values["order_id"]), coerce(values["status"]))
	},
}

// genericSuccess is used when no template and no builtin formatter exist.
const genericSuccess = "操作已完成。"

// RenderSuccess renders a success response, preferring the configured
// template, then the intent's builtin formatter.
func RenderSuccess(intentName, template string, values map[string]any) string {
	if template != "" && template != genericSuccess {
		return Render(template, values)
	}
	if formatter, ok := builtinFormatters[intentName]; ok {
		return formatter(values)
	}
	if template != "" {
		return Render(template, values)
	}
	return genericSuccess
}

// RenderFailure renders a failure response with {error_message} available.
func RenderFailure(template, errorMessage string, values map[string]any) string {
	if template == "" {
		template = "操作失败: {error_message},请稍后重试。"
	}
	merged := MergeValues(values, map[string]any{"error_message": errorMessage})
	return Render(template, merged)
}

// ExpandPlaceholders substitutes slot placeholders in arbitrary config
// strings (URLs, header values, body templates).
func ExpandPlaceholders(s string, slots map[string]string) string {
	return Render(s, StringValues(slots))
}
