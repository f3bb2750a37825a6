// Package choice parses user replies to disambiguation prompts: numeric
// picks, textual picks, negatives, uncertainty, and fuzzy or mistyped input.
package choice

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/leichangqing/intelligence-intent-sub003/store"
)

// Type classifies how the user expressed a choice.
type Type string

const (
	TypeNumeric     Type = "numeric"
	TypeTextual     Type = "textual"
	TypeMixed       Type = "mixed"
	TypeDescriptive Type = "descriptive"
	TypeNegative    Type = "negative"
	TypeUncertain   Type = "uncertain"
)

// Level is the coarse confidence band of a parse.
type Level string

const (
	LevelHigh    Level = "HIGH"
	LevelMedium  Level = "MEDIUM"
	LevelLow     Level = "LOW"
	LevelVeryLow Level = "VERY_LOW"
)

// Result is the outcome of one parse. SelectedOption is 1-based; 0 means
// no candidate was picked.
type Result struct {
	Type           Type     `json:"type"`
	SelectedOption int      `json:"selected_option,omitempty"`
	SelectedText   string   `json:"selected_text,omitempty"`
	Confidence     float64  `json:"confidence"`
	Level          Level    `json:"confidence_level"`
	Alternatives   []int    `json:"alternatives,omitempty"`
	Corrections    []string `json:"corrections,omitempty"`
	Explanation    string   `json:"explanation,omitempty"`
}

// Context carries optional hints the parser may use. All fields are
// read-only; given fixed inputs the parse is deterministic.
type Context struct {
	RecentIntents []string          // most recent first
	Preferences   map[string]string // stated user preferences
	UserID        string
	Patterns      *Patterns // per-user choice habit history
	AllowMultiple bool
}

var (
	fillerTokens = []string{"额", "呃", "嗯", "那", "这", "就", "我", "要", "选", "的", "是"}

	negativeTokens = []string{
		"都不是", "不是", "没有", "不对", "错了", "不要", "不需要",
		"不符合", "不匹配", "不行", "不可以", "取消", "算了",
	}
	uncertainTokens = []string{
		"不知道", "不确定", "不清楚", "不太明白", "不太懂", "看不懂",
		"不明白", "搞不清", "不太理解", "模糊",
	}
	multiTriggers   = []string{"和", "还有", "以及", "也要", "都要", "全部"}
	multiSeparators = []string{"和", "还有", "以及", "、", ",", ","}

	punctuation = ",.!?；，。！？"

	ordinalPattern = regexp.MustCompile(`第\s*([0-9一二三四五六七八九十]+)\s*个?`)
	selectPattern  = regexp.MustCompile(`选择?\s*([0-9一二三四五六七八九十]+)`)
	numberPattern  = regexp.MustCompile(`([0-9]+)\s*号?`)
	digitAnywhere  = regexp.MustCompile(`[0-9]+`)

	chineseOrdinals = map[string]int{
		"一": 1, "二": 2, "三": 3, "四": 4, "五": 5,
		"六": 6, "七": 7, "八": 8, "九": 9, "十": 10,
	}

	typoReplacer = strings.NewReplacer(
		"l", "1", "I", "1", "o", "0", "O", "0",
		"1", "1", "2", "2", "3", "3", "4", "4", "5", "5",
		"6", "6", "7", "7", "8", "8", "9", "9", "0", "0",
	)
)

// Parse interprets a single-choice reply against the candidate list.
func Parse(input string, candidates []store.CandidateIntent, parseContext *Context) *Result {
	if parseContext == nil {
		parseContext = &Context{}
	}
	cleaned := preprocess(input)
	if cleaned == "" {
		return failure(candidates, "输入为空")
	}

	if containsAny(cleaned, negativeTokens) {
		return &Result{Type: TypeNegative, Confidence: 0.9, Level: band(0.9),
			Explanation: "否定了所有选项"}
	}
	if containsAny(cleaned, uncertainTokens) {
		return &Result{Type: TypeUncertain, Confidence: 0.8, Level: band(0.8),
			Explanation: "表示不确定"}
	}

	if result := parseNumeric(cleaned, len(candidates)); result != nil {
		return result
	}
	if result := parseTextual(cleaned, candidates); result != nil {
		return result
	}
	if result := parseContextual(cleaned, candidates, parseContext); result != nil {
		return result
	}
	if result := parseCorrected(cleaned, candidates); result != nil {
		return result
	}
	if result := parseDescriptive(cleaned, candidates); result != nil {
		return result
	}
	if result := parseUserPattern(cleaned, candidates, parseContext); result != nil {
		return result
	}
	return failure(candidates, "无法识别选择")
}

// ParseMulti splits a multi-choice reply and parses each part
// independently. Falls back to a single parse when no trigger appears.
func ParseMulti(input string, candidates []store.CandidateIntent, parseContext *Context) []*Result {
	cleaned := preprocess(input)
	if !containsAny(cleaned, multiTriggers) {
		return []*Result{Parse(input, candidates, parseContext)}
	}

	parts := []string{cleaned}
	for _, sep := range multiSeparators {
		var next []string
		for _, part := range parts {
			next = append(next, strings.Split(part, sep)...)
		}
		parts = next
	}

	var results []*Result
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" || part == "都要" || part == "全部" || part == "也要" {
			continue
		}
		results = append(results, Parse(part, candidates, parseContext))
	}
	if len(results) == 0 {
		return []*Result{Parse(input, candidates, parseContext)}
	}
	return results
}

// preprocess collapses whitespace, strips leading filler, removes
// punctuation, and lowercases ASCII.
func preprocess(input string) string {
	s := strings.Join(strings.Fields(input), "")
	for changed := true; changed; {
		changed = false
		for _, filler := range fillerTokens {
			if strings.HasPrefix(s, filler) {
				s = strings.TrimPrefix(s, filler)
				changed = true
			}
		}
	}
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(punctuation, r) {
			return -1
		}
		return r
	}, s)
	return strings.ToLower(strings.TrimSpace(s))
}

func parseNumeric(input string, candidateCount int) *Result {
	pick := func(n int, explanation string) *Result {
		if n < 1 || n > candidateCount {
			return &Result{Type: TypeNumeric, Confidence: 0.3, Level: band(0.3),
				Explanation: fmt.Sprintf("序号 %d 超出选项范围", n)}
		}
		return &Result{Type: TypeNumeric, SelectedOption: n, Confidence: 0.95,
			Level: band(0.95), Explanation: explanation}
	}

	if m := ordinalPattern.FindStringSubmatch(input); m != nil {
		if n, ok := parseOrdinal(m[1]); ok {
			return pick(n, fmt.Sprintf("第%d个", n))
		}
	}
	if m := selectPattern.FindStringSubmatch(input); m != nil {
		if n, ok := parseOrdinal(m[1]); ok {
			return pick(n, fmt.Sprintf("选择%d", n))
		}
	}
	// Bare digits or "N号" only when the whole input is the number.
	if m := numberPattern.FindStringSubmatch(input); m != nil && m[0] == input {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return pick(n, fmt.Sprintf("%d号", n))
		}
	}
	if n, ok := chineseOrdinals[input]; ok {
		return pick(n, "中文数字")
	}
	return nil
}

func parseOrdinal(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	if n, ok := chineseOrdinals[s]; ok {
		return n, true
	}
	return 0, false
}

func parseTextual(input string, candidates []store.CandidateIntent) *Result {
	// Direct substring match against display name or intent name.
	for i, c := range candidates {
		display := strings.ToLower(c.DisplayName)
		name := strings.ToLower(c.Name)
		if (display != "" && (strings.Contains(input, display) || strings.Contains(display, input))) ||
			strings.Contains(input, name) {
			return &Result{Type: TypeTextual, SelectedOption: i + 1, SelectedText: c.DisplayName,
				Confidence: 0.9, Level: band(0.9), Explanation: "名称匹配"}
		}
	}

	// Token overlap, then Jaccard similarity over token sets.
	bestIdx, bestScore := 0, 0.0
	for i, c := range candidates {
		score := jaccard(tokenize(input), tokenize(strings.ToLower(c.DisplayName)))
		if score > bestScore {
			bestIdx, bestScore = i+1, score
		}
	}
	if bestScore >= 0.6 {
		return &Result{Type: TypeTextual, SelectedOption: bestIdx,
			SelectedText: candidates[bestIdx-1].DisplayName,
			Confidence:   0.6 + 0.3*bestScore, Level: band(0.6 + 0.3*bestScore),
			Explanation: fmt.Sprintf("相似度 %.2f", bestScore)}
	}
	return nil
}

// parseContextual biases toward a stated preference or a recently used
// intent when the input is otherwise uninformative.
func parseContextual(input string, candidates []store.CandidateIntent, parseContext *Context) *Result {
	// Weak affirmations lean on what we already know about the user.
	affirmations := []string{"老样子", "跟上次一样", "一样", "还是那个", "老规矩"}
	if !containsAny(input, affirmations) {
		return nil
	}

	// A stated preference naming a candidate outranks recency.
	if len(parseContext.Preferences) > 0 {
		keys := make([]string, 0, len(parseContext.Preferences))
		for key := range parseContext.Preferences {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			preferred := strings.ToLower(parseContext.Preferences[key])
			if preferred == "" {
				continue
			}
			for i, c := range candidates {
				if strings.ToLower(c.Name) == preferred || strings.ToLower(c.DisplayName) == preferred {
					return &Result{Type: TypeMixed, SelectedOption: i + 1, SelectedText: c.DisplayName,
						Confidence: 0.7, Level: band(0.7), Explanation: "匹配用户声明的偏好"}
				}
			}
		}
	}

	for _, recent := range parseContext.RecentIntents {
		for i, c := range candidates {
			if c.Name == recent {
				return &Result{Type: TypeMixed, SelectedOption: i + 1, SelectedText: c.DisplayName,
					Confidence: 0.65, Level: band(0.65), Explanation: "延续最近使用的意图"}
			}
		}
	}
	return nil
}

// parseCorrected canonicalizes common typos (l/I as 1, o/O as 0, fullwidth
// digits) and retries; string similarity is the last resort.
func parseCorrected(input string, candidates []store.CandidateIntent) *Result {
	corrected := normalizeFullwidth(typoReplacer.Replace(input))
	if corrected != input {
		if result := parseNumeric(corrected, len(candidates)); result != nil && result.SelectedOption > 0 {
			result.Corrections = []string{fmt.Sprintf("%s -> %s", input, corrected)}
			result.Confidence *= 0.85
			result.Level = band(result.Confidence)
			return result
		}
	}

	bestIdx, bestScore := 0, 0.0
	for i, c := range candidates {
		score := similarityRatio(input, strings.ToLower(c.DisplayName))
		if score > bestScore {
			bestIdx, bestScore = i+1, score
		}
	}
	if bestScore >= 0.7 {
		confidence := 0.5 * bestScore
		return &Result{Type: TypeTextual, SelectedOption: bestIdx,
			SelectedText: candidates[bestIdx-1].DisplayName,
			Confidence:   confidence, Level: band(confidence),
			Corrections: []string{"按相似度匹配"},
			Explanation: fmt.Sprintf("字符串相似度 %.2f", bestScore)}
	}
	return nil
}

// parseDescriptive combines keyword overlap with bigram semantic
// similarity (0.6*kw + 0.4*sem), accepting scores of 0.4 or better.
func parseDescriptive(input string, candidates []store.CandidateIntent) *Result {
	bestIdx, bestScore := 0, 0.0
	inputTokens := tokenize(input)
	for i, c := range candidates {
		target := strings.ToLower(c.DisplayName + c.Name)
		kw := jaccard(inputTokens, tokenize(target))
		sem := similarityRatio(input, target)
		score := 0.6*kw + 0.4*sem
		if score > bestScore {
			bestIdx, bestScore = i+1, score
		}
	}
	if bestScore >= 0.4 {
		return &Result{Type: TypeDescriptive, SelectedOption: bestIdx,
			SelectedText: candidates[bestIdx-1].DisplayName,
			Confidence:   bestScore, Level: band(bestScore),
			Explanation: fmt.Sprintf("描述匹配 %.2f", bestScore)}
	}
	return nil
}

// parseUserPattern re-reads input that every other strategy rejected in
// the style this user habitually answers with.
func parseUserPattern(input string, candidates []store.CandidateIntent, parseContext *Context) *Result {
	if parseContext.Patterns == nil || parseContext.UserID == "" {
		return nil
	}
	habit, ok := parseContext.Patterns.Habitual(parseContext.UserID)
	if !ok {
		return nil
	}

	switch habit {
	case TypeNumeric, TypeMixed:
		// Habitual numeric pickers get a digit rescued from noise.
		if m := digitAnywhere.FindString(input); m != "" {
			if n, err := strconv.Atoi(m); err == nil && n >= 1 && n <= len(candidates) {
				return &Result{Type: TypeNumeric, SelectedOption: n,
					SelectedText: candidates[n-1].DisplayName,
					Confidence:   0.6, Level: band(0.6),
					Explanation: "按用户习惯取输入中的序号"}
			}
		}
	case TypeTextual, TypeDescriptive:
		// Habitual describers get a lower descriptive-match bar.
		bestIdx, bestScore := 0, 0.0
		inputTokens := tokenize(input)
		for i, c := range candidates {
			target := strings.ToLower(c.DisplayName + c.Name)
			score := 0.6*jaccard(inputTokens, tokenize(target)) + 0.4*similarityRatio(input, target)
			if score > bestScore {
				bestIdx, bestScore = i+1, score
			}
		}
		if bestScore >= 0.25 {
			confidence := 0.4 + 0.4*bestScore
			return &Result{Type: TypeDescriptive, SelectedOption: bestIdx,
				SelectedText: candidates[bestIdx-1].DisplayName,
				Confidence:   confidence, Level: band(confidence),
				Explanation: fmt.Sprintf("按用户习惯匹配描述 %.2f", bestScore)}
		}
	}
	return nil
}

// failure produces the uncertain result with targeted correction
// suggestions.
func failure(candidates []store.CandidateIntent, reason string) *Result {
	suggestions := []string{"请用数字选择,例如: 1"}
	var names []string
	for i, c := range candidates {
		if i == 3 {
			break
		}
		names = append(names, c.DisplayName)
	}
	if len(names) > 0 {
		suggestions = append(suggestions, "可选: "+strings.Join(names, " / "))
	}
	suggestions = append(suggestions, "也可以换一种说法描述您想要的操作")
	return &Result{Type: TypeUncertain, Confidence: 0.2, Level: band(0.2),
		Corrections: suggestions, Explanation: reason}
}

func band(confidence float64) Level {
	switch {
	case confidence >= 0.8:
		return LevelHigh
	case confidence >= 0.6:
		return LevelMedium
	case confidence >= 0.4:
		return LevelLow
	default:
		return LevelVeryLow
	}
}

func containsAny(s string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(s, token) {
			return true
		}
	}
	return false
}

// tokenize splits ASCII on word boundaries and CJK into single runes.
func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	var ascii strings.Builder
	flush := func() {
		if ascii.Len() > 0 {
			tokens[ascii.String()] = true
			ascii.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			ascii.WriteRune(r)
		case r > 127:
			flush()
			tokens[string(r)] = true
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if b[token] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// similarityRatio is a bigram dice coefficient over runes.
func similarityRatio(a, b string) float64 {
	ga, gb := bigrams(a), bigrams(b)
	if len(ga) == 0 || len(gb) == 0 {
		if a == b && a != "" {
			return 1
		}
		return 0
	}
	matches := 0
	used := make([]bool, len(gb))
	for _, x := range ga {
		for j, y := range gb {
			if !used[j] && x == y {
				used[j] = true
				matches++
				break
			}
		}
	}
	return 2 * float64(matches) / float64(len(ga)+len(gb))
}

func bigrams(s string) []string {
	runes := []rune(s)
	if len(runes) < 2 {
		return nil
	}
	grams := make([]string, 0, len(runes)-1)
	for i := 0; i+1 < len(runes); i++ {
		grams = append(grams, string(runes[i:i+2]))
	}
	return grams
}

// normalizeFullwidth maps fullwidth digits to ASCII.
func normalizeFullwidth(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return '0' + (r - '0')
		}
		return r
	}, s)
}
