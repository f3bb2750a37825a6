// Package resolver attempts automatic ambiguity resolution through a set
// of prioritized strategies before falling back to interactive clarification.
package resolver

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/leichangqing/intelligence-intent-sub003/dialog/nlu"
	"github.com/leichangqing/intelligence-intent-sub003/store"
)

// AttemptResult is the outcome of one strategy attempt.
type AttemptResult string

const (
	AttemptResolved AttemptResult = "resolved"
	AttemptPartial  AttemptResult = "partial"
	AttemptFailed   AttemptResult = "failed"
	AttemptDeferred AttemptResult = "deferred"
)

// Attempt records one strategy run for audit.
type Attempt struct {
	Strategy   string        `json:"strategy"`
	Result     AttemptResult `json:"result"`
	Intent     string        `json:"intent,omitempty"`
	Confidence float64       `json:"confidence"`
	ElapsedMS  int64         `json:"elapsed_ms"`
}

// Input is everything a strategy may consult.
type Input struct {
	Candidates    []nlu.Candidate
	Intents       map[string]*store.IntentDefinition
	CurrentIntent string   // intent active in the session context
	RecentIntents []string // from history, most recent first
	UserID        string
	Hour          int // turn-start hour of day, for temporal patterns
}

// Strategy is one resolution approach.
type Strategy interface {
	Name() string
	// Fitness estimates how applicable the strategy is to this input (0..1).
	Fitness(in *Input) float64
	Resolve(ctx context.Context, in *Input) (string, float64)
}

type strategyState struct {
	strategy Strategy
	weight   float64
	attempts int64
	resolved int64
}

func (s *strategyState) successRate() float64 {
	if s.attempts == 0 {
		return 0.5
	}
	return float64(s.resolved) / float64(s.attempts)
}

// userModel is the per-user statistical picture used by the statistical
// strategy and learning updates.
type userModel struct {
	intentCount map[string]int64
	hourCount   map[string]map[int]int64 // intent -> hour -> count
	success     map[string]int64
	total       int64
}

// Resolver orders strategies by dynamic priority and returns the first
// resolved intent.
type Resolver struct {
	mu         sync.RWMutex
	strategies []*strategyState
	users      map[string]*userModel
}

// New creates a resolver with the standard strategy set: automatic,
// contextual, statistical, hybrid.
func New() *Resolver {
	r := &Resolver{users: make(map[string]*userModel)}
	automatic := &automaticStrategy{resolver: r}
	contextual := &contextualStrategy{}
	statistical := &statisticalStrategy{resolver: r}
	r.strategies = []*strategyState{
		{strategy: automatic, weight: 1.0},
		{strategy: contextual, weight: 0.8},
		{strategy: statistical, weight: 0.6},
	}
	r.strategies = append(r.strategies, &strategyState{
		strategy: &hybridStrategy{members: []Strategy{automatic, contextual, statistical}},
		weight:   0.5,
	})
	return r
}

// Resolve runs strategies in priority order. Priority is
// 0.4*weight + 0.4*historical success rate + 0.2*context fitness.
// Returns the chosen intent, the attempt trail, and whether one resolved.
func (r *Resolver) Resolve(ctx context.Context, in *Input) (string, []Attempt, bool) {
	r.mu.RLock()
	ordered := make([]*strategyState, len(r.strategies))
	copy(ordered, r.strategies)
	sort.SliceStable(ordered, func(i, j int) bool {
		return r.priority(ordered[i], in) > r.priority(ordered[j], in)
	})
	r.mu.RUnlock()

	var attempts []Attempt
	for _, state := range ordered {
		start := time.Now()
		intent, confidence := state.strategy.Resolve(ctx, in)
		attempt := Attempt{
			Strategy:   state.strategy.Name(),
			Confidence: confidence,
			ElapsedMS:  time.Since(start).Milliseconds(),
		}
		if intent != "" {
			attempt.Result = AttemptResolved
			attempt.Intent = intent
			attempts = append(attempts, attempt)
			r.recordAttempt(state.strategy.Name(), true)
			slog.Debug("ambiguity auto-resolved", "strategy", attempt.Strategy, "intent", intent, "confidence", confidence)
			return intent, attempts, true
		}
		if confidence > 0 {
			attempt.Result = AttemptPartial
		} else {
			attempt.Result = AttemptFailed
		}
		attempts = append(attempts, attempt)
		r.recordAttempt(state.strategy.Name(), false)
	}
	return "", attempts, false
}

func (r *Resolver) priority(state *strategyState, in *Input) float64 {
	return 0.4*state.weight + 0.4*state.successRate() + 0.2*state.strategy.Fitness(in)
}

func (r *Resolver) recordAttempt(name string, resolved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, state := range r.strategies {
		if state.strategy.Name() == name {
			state.attempts++
			if resolved {
				state.resolved++
			}
			return
		}
	}
}

// Learn feeds a confirmed resolution outcome back into the per-user model.
func (r *Resolver) Learn(userID, intent string, hour int, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	model := r.users[userID]
	if model == nil {
		model = &userModel{
			intentCount: make(map[string]int64),
			hourCount:   make(map[string]map[int]int64),
			success:     make(map[string]int64),
		}
		r.users[userID] = model
	}
	model.total++
	model.intentCount[intent]++
	if model.hourCount[intent] == nil {
		model.hourCount[intent] = make(map[int]int64)
	}
	model.hourCount[intent][hour]++
	if success {
		model.success[intent]++
	}
}

func (r *Resolver) user(userID string) *userModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.users[userID]
}
