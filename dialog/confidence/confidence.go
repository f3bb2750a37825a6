// Package confidence implements per-intent adaptive thresholds and
// multi-signal ambiguity detection over classification candidates.
package confidence

import (
	"log/slog"
	"sync"

	"github.com/leichangqing/intelligence-intent-sub003/internal/profile"
	"github.com/leichangqing/intelligence-intent-sub003/store"
)

// Band is a coarse confidence level.
type Band string

const (
	BandHigh    Band = "HIGH"
	BandMedium  Band = "MEDIUM"
	BandLow     Band = "LOW"
	BandReject  Band = "REJECT"
	BandVeryLow Band = "VERY_LOW"
)

// maxAdjustment bounds how far the adaptive threshold may drift from the
// configured per-intent threshold.
const maxAdjustment = 0.05

// adjustmentStep is applied per sustained observation window.
const adjustmentStep = 0.01

// minSamples before the adaptive loop starts moving a threshold.
const minSamples = 20

type intentStats struct {
	n             int64
	success       int64
	avgConfidence float64
	adjustment    float64
}

// Manager tracks per-intent statistics and answers threshold decisions.
type Manager struct {
	profile *profile.Profile
	mu      sync.RWMutex
	stats   map[string]*intentStats
}

// NewManager creates a confidence manager.
func NewManager(p *profile.Profile) *Manager {
	return &Manager{profile: p, stats: make(map[string]*intentStats)}
}

// Threshold returns the effective threshold for an intent: its configured
// threshold (or the global floor) plus the bounded adaptive adjustment.
func (m *Manager) Threshold(intent *store.IntentDefinition) float64 {
	base := intent.ConfidenceThreshold
	if base <= 0 {
		base = m.profile.IntentConfidenceThreshold
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.stats[intent.Name]; ok {
		return base + s.adjustment
	}
	return base
}

// Passed reports whether a candidate confidence clears the intent's threshold.
func (m *Manager) Passed(intent *store.IntentDefinition, confidence float64) bool {
	return confidence >= m.Threshold(intent)
}

// Band maps a confidence onto the configured global bands.
func (m *Manager) Band(confidence float64) Band {
	switch {
	case confidence >= m.profile.ConfidenceHigh:
		return BandHigh
	case confidence >= m.profile.ConfidenceMedium:
		return BandMedium
	case confidence >= m.profile.ConfidenceLow:
		return BandLow
	case confidence >= m.profile.ConfidenceReject:
		return BandReject
	default:
		return BandVeryLow
	}
}

// Record feeds one classification outcome into the adaptive loop. Sustained
// low success at the current threshold raises it (up to +0.05); sustained
// high success lowers it (down to -0.05).
func (m *Manager) Record(intentName string, confidence float64, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stats[intentName]
	if !ok {
		s = &intentStats{}
		m.stats[intentName] = s
	}
	s.n++
	if success {
		s.success++
	}
	s.avgConfidence += (confidence - s.avgConfidence) / float64(s.n)

	if s.n < minSamples {
		return
	}
	rate := float64(s.success) / float64(s.n)
	switch {
	case rate < 0.5 && s.adjustment < maxAdjustment:
		s.adjustment += adjustmentStep
		if s.adjustment > maxAdjustment {
			s.adjustment = maxAdjustment
		}
		slog.Debug("threshold raised", "intent", intentName, "adjustment", s.adjustment, "success_rate", rate)
	case rate > 0.9 && s.adjustment > -maxAdjustment:
		s.adjustment -= adjustmentStep
		if s.adjustment < -maxAdjustment {
			s.adjustment = -maxAdjustment
		}
		slog.Debug("threshold lowered", "intent", intentName, "adjustment", s.adjustment, "success_rate", rate)
	}
}

// Stats returns (n, successes, running average confidence) for an intent.
func (m *Manager) Stats(intentName string) (int64, int64, float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.stats[intentName]; ok {
		return s.n, s.success, s.avgConfidence
	}
	return 0, 0, 0
}
