// Package slots implements the slot transformer and the per-session slot
// store facade. The transformer is the single crossing point between the
// wire, store, and cache representations of a slot value.
package slots

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/leichangqing/intelligence-intent-sub003/store"
)

var (
	emailRegex = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	phoneRegex = regexp.MustCompile(`^1[3-9][0-9]{9}$`)
	isoDate    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	nonDigits  = regexp.MustCompile(`[^0-9]`)

	quantifiedNumber = regexp.MustCompile(`^([0-9一二三四五六七八九十两俩]+)\s*[个张位名条只份次]`)
)

// relativeDates maps relative day terms to day offsets from the turn-start
// wall clock.
var relativeDates = map[string]int{
	"今天":        0,
	"明天":        1,
	"后天":        2,
	"昨天":        -1,
	"前天":        -2,
	"today":     0,
	"tomorrow":  1,
	"yesterday": -1,
}

var chineseDigits = map[rune]int{
	'零': 0, '一': 1, '二': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
	'两': 2, '俩': 2,
}

// Transformer normalizes and validates raw slot values against their
// configured type and validation rules. CEL programs are compiled once
// per rule expression and cached.
type Transformer struct {
	celEnv      *cel.Env
	celPrograms map[string]cel.Program
	celMu       sync.Mutex
}

// NewTransformer creates a transformer with a CEL environment exposing the
// candidate value as the string variable `value`.
func NewTransformer() *Transformer {
	env, err := cel.NewEnv(cel.Variable("value", cel.StringType))
	if err != nil {
		// Static declaration, cannot fail at runtime.
		slog.Error("failed to create cel environment", "error", err)
	}
	return &Transformer{
		celEnv:      env,
		celPrograms: make(map[string]cel.Program),
	}
}

// Normalized is the outcome of one normalization pass.
type Normalized struct {
	Value  string
	Status store.ValidationStatus
	Error  string
}

// Normalize converts a raw extracted string into the canonical form of the
// slot's type and validates it against the slot's rules. Idempotent: a
// value already in canonical form passes through unchanged.
func (t *Transformer) Normalize(slot *store.SlotDefinition, raw string, now time.Time) Normalized {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Normalized{Status: store.ValidationMissing}
	}

	var result Normalized
	switch slot.Type {
	case store.SlotTypeDate:
		result = normalizeDate(trimmed, now)
	case store.SlotTypeNumber:
		result = normalizeNumber(trimmed)
	case store.SlotTypeEmail:
		result = normalizeEmail(trimmed)
	case store.SlotTypePhone:
		result = normalizePhone(trimmed)
	case store.SlotTypeEnum:
		result = normalizeEnum(trimmed, slot.ValidationRules)
	default:
		result = normalizeText(trimmed, slot.ValidationRules)
	}

	if result.Status == store.ValidationValid {
		if err := t.checkCustomRule(slot, result.Value); err != nil {
			return Normalized{Value: result.Value, Status: store.ValidationInvalid, Error: err.Error()}
		}
	}
	return result
}

func normalizeDate(raw string, now time.Time) Normalized {
	if isoDate.MatchString(raw) {
		if _, err := time.Parse("2006-01-02", raw); err == nil {
			return Normalized{Value: raw, Status: store.ValidationValid}
		}
		return Normalized{Value: raw, Status: store.ValidationInvalid, Error: "不是有效日期"}
	}
	if offset, ok := relativeDates[strings.ToLower(raw)]; ok {
		return Normalized{
			Value:  now.AddDate(0, 0, offset).Format("2006-01-02"),
			Status: store.ValidationValid,
		}
	}
	// Unrecognized date text is kept raw and flagged pending.
	return Normalized{Value: raw, Status: store.ValidationPending}
}

func normalizeNumber(raw string) Normalized {
	candidate := raw
	if m := quantifiedNumber.FindStringSubmatch(raw); m != nil {
		candidate = m[1]
	}

	if n, ok := parseChineseNumber(candidate); ok {
		return Normalized{Value: strconv.Itoa(n), Status: store.ValidationValid}
	}
	if n, err := strconv.ParseInt(candidate, 10, 64); err == nil {
		return Normalized{Value: strconv.FormatInt(n, 10), Status: store.ValidationValid}
	}
	if f, err := strconv.ParseFloat(candidate, 64); err == nil {
		if f == float64(int64(f)) {
			return Normalized{Value: strconv.FormatInt(int64(f), 10), Status: store.ValidationValid}
		}
		return Normalized{Value: strconv.FormatFloat(f, 'f', -1, 64), Status: store.ValidationValid}
	}
	return Normalized{Value: raw, Status: store.ValidationInvalid, Error: "不是有效数字"}
}

// parseChineseNumber handles single digits, 十/两/俩, and the compound
// forms 十二 (12), 二十 (20), 三十五 (35).
func parseChineseNumber(s string) (int, bool) {
	runes := []rune(s)
	switch len(runes) {
	case 1:
		if runes[0] == '十' {
			return 10, true
		}
		if d, ok := chineseDigits[runes[0]]; ok {
			return d, true
		}
	case 2:
		if runes[0] == '十' {
			if d, ok := chineseDigits[runes[1]]; ok {
				return 10 + d, true
			}
		}
		if runes[1] == '十' {
			if d, ok := chineseDigits[runes[0]]; ok {
				return d * 10, true
			}
		}
	case 3:
		if runes[1] == '十' {
			tens, okTens := chineseDigits[runes[0]]
			ones, okOnes := chineseDigits[runes[2]]
			if okTens && okOnes {
				return tens*10 + ones, true
			}
		}
	}
	return 0, false
}

func normalizeEmail(raw string) Normalized {
	lowered := strings.ToLower(raw)
	if emailRegex.MatchString(lowered) {
		return Normalized{Value: lowered, Status: store.ValidationValid}
	}
	return Normalized{Value: lowered, Status: store.ValidationInvalid, Error: "邮箱格式不正确"}
}

func normalizePhone(raw string) Normalized {
	digits := nonDigits.ReplaceAllString(raw, "")
	if phoneRegex.MatchString(digits) {
		return Normalized{Value: digits, Status: store.ValidationValid}
	}
	return Normalized{Value: digits, Status: store.ValidationInvalid, Error: "手机号格式不正确"}
}

func normalizeText(raw string, rules map[string]any) Normalized {
	length := len([]rune(raw))
	if min, ok := ruleInt(rules, "min_length"); ok && length < min {
		return Normalized{Value: raw, Status: store.ValidationInvalid,
			Error: fmt.Sprintf("长度不能少于%d个字符", min)}
	}
	if max, ok := ruleInt(rules, "max_length"); ok && length > max {
		return Normalized{Value: raw, Status: store.ValidationInvalid,
			Error: fmt.Sprintf("长度不能超过%d个字符", max)}
	}
	return Normalized{Value: raw, Status: store.ValidationValid}
}

func normalizeEnum(raw string, rules map[string]any) Normalized {
	values, ok := rules["values"].([]any)
	if !ok {
		return Normalized{Value: raw, Status: store.ValidationValid}
	}
	for _, v := range values {
		if s, ok := v.(string); ok && strings.EqualFold(s, raw) {
			return Normalized{Value: s, Status: store.ValidationValid}
		}
	}
	return Normalized{Value: raw, Status: store.ValidationInvalid, Error: "不在允许的取值范围内"}
}

// checkCustomRule evaluates the slot's optional CEL expression
// (validation_rules["cel"]) against the normalized value.
func (t *Transformer) checkCustomRule(slot *store.SlotDefinition, value string) error {
	expr, ok := slot.ValidationRules["cel"].(string)
	if !ok || expr == "" || t.celEnv == nil {
		return nil
	}

	program, err := t.compileRule(expr)
	if err != nil {
		slog.Warn("invalid cel validation rule, skipping", "slot", slot.Name, "error", err)
		return nil
	}
	out, _, err := program.Eval(map[string]any{"value": value})
	if err != nil {
		return fmt.Errorf("校验失败: %v", err)
	}
	if passed, ok := out.Value().(bool); ok && !passed {
		return fmt.Errorf("不满足取值约束")
	}
	return nil
}

func (t *Transformer) compileRule(expr string) (cel.Program, error) {
	t.celMu.Lock()
	defer t.celMu.Unlock()
	if program, ok := t.celPrograms[expr]; ok {
		return program, nil
	}
	ast, issues := t.celEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	program, err := t.celEnv.Program(ast)
	if err != nil {
		return nil, err
	}
	t.celPrograms[expr] = program
	return program, nil
}
