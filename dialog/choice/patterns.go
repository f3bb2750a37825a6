package choice

import "sync"

// Patterns accumulates how each user answers clarifications. Once a user
// shows a stable habit, otherwise unparseable replies are re-read in that
// style.
type Patterns struct {
	mu     sync.RWMutex
	counts map[string]map[Type]int
}

// NewPatterns creates an empty per-user choice history.
func NewPatterns() *Patterns {
	return &Patterns{counts: make(map[string]map[Type]int)}
}

// Record notes one resolved clarification answer for the user.
func (p *Patterns) Record(userID string, choiceType Type) {
	if userID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	byType, ok := p.counts[userID]
	if !ok {
		byType = make(map[Type]int)
		p.counts[userID] = byType
	}
	byType[choiceType]++
}

// Habitual returns the user's dominant choice type once at least three
// answers are recorded and the dominant type covers 60% of them.
func (p *Patterns) Habitual(userID string) (Type, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := 0
	best, bestCount := Type(""), 0
	for choiceType, n := range p.counts[userID] {
		total += n
		if n > bestCount || (n == bestCount && choiceType < best) {
			best, bestCount = choiceType, n
		}
	}
	if total < 3 || float64(bestCount) < 0.6*float64(total) {
		return "", false
	}
	return best, true
}
