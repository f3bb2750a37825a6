// Package registry caches active intent definitions, slot schemas,
// handler bindings and response templates as immutable snapshots.
package registry

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/leichangqing/intelligence-intent-sub003/store"
)

// Snapshot is one immutable view of the intent/slot configuration.
// Reads after warm-up never take a lock; Invalidate swaps the pointer.
type Snapshot struct {
	Version   int64
	Intents   []*store.IntentDefinition          // active, priority desc
	byName    map[string]*store.IntentDefinition // active intents only
	slots     map[string][]*store.SlotDefinition // intent name -> slots
	LoadedTs  int64
	SlotCount int
}

// Registry is the process-wide intent/slot configuration cache.
type Registry struct {
	store    *store.Store
	snapshot atomic.Pointer[Snapshot]
	version  atomic.Int64
	reloads  singleflight.Group
}

// New creates a registry. Call Warmup before serving turns.
func New(s *store.Store) *Registry {
	return &Registry{store: s}
}

// Warmup loads the initial snapshot.
func (r *Registry) Warmup(ctx context.Context) error {
	_, err := r.reload(ctx)
	return err
}

// Current returns the live snapshot, loading one if none exists yet.
func (r *Registry) Current(ctx context.Context) (*Snapshot, error) {
	if snap := r.snapshot.Load(); snap != nil {
		return snap, nil
	}
	return r.reload(ctx)
}

// Invalidate discards the snapshot so the next read reloads from the store.
// Called after any write to intent or slot configuration.
func (r *Registry) Invalidate(ctx context.Context, reason string) {
	old := r.snapshot.Swap(nil)
	if old == nil {
		return
	}
	slog.Info("registry snapshot invalidated", "version", old.Version, "reason", reason)
	if _, err := r.store.CreateCacheInvalidationLog(ctx, &store.CacheInvalidationLog{
		CacheName: "registry",
		Key:       "snapshot",
		Reason:    reason,
		CreatedTs: time.Now().Unix(),
	}); err != nil {
		slog.Debug("failed to record registry invalidation", "error", err)
	}
}

// reload rebuilds the snapshot; concurrent callers share one load.
func (r *Registry) reload(ctx context.Context) (*Snapshot, error) {
	v, err, _ := r.reloads.Do("snapshot", func() (any, error) {
		return r.load(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (r *Registry) load(ctx context.Context) (*Snapshot, error) {
	active := true
	intents, err := r.store.ListIntentDefinitions(ctx, &store.FindIntentDefinition{IsActive: &active})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load intent definitions")
	}
	slots, err := r.store.ListSlotDefinitions(ctx, &store.FindSlotDefinition{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load slot definitions")
	}

	snap := &Snapshot{
		Version:   r.version.Add(1),
		Intents:   intents,
		byName:    make(map[string]*store.IntentDefinition, len(intents)),
		slots:     make(map[string][]*store.SlotDefinition),
		LoadedTs:  time.Now().Unix(),
		SlotCount: len(slots),
	}
	for _, intent := range intents {
		snap.byName[intent.Name] = intent
	}
	for _, slot := range slots {
		snap.slots[slot.IntentName] = append(snap.slots[slot.IntentName], slot)
	}

	r.snapshot.Store(snap)
	slog.Debug("registry snapshot loaded", "version", snap.Version, "intents", len(intents), "slots", len(slots))
	return snap, nil
}

// ActiveIntents returns all active intents ordered by priority desc.
func (s *Snapshot) ActiveIntents() []*store.IntentDefinition {
	return s.Intents
}

// Intent returns the active intent with the given name, or nil.
func (s *Snapshot) Intent(name string) *store.IntentDefinition {
	return s.byName[name]
}

// Slots returns the slot schemas of an intent. Order follows definition order.
func (s *Snapshot) Slots(intentName string) []*store.SlotDefinition {
	return s.slots[intentName]
}

// RequiredSlots returns the required slot schemas of an intent.
func (s *Snapshot) RequiredSlots(intentName string) []*store.SlotDefinition {
	var required []*store.SlotDefinition
	for _, slot := range s.slots[intentName] {
		if slot.Required {
			required = append(required, slot)
		}
	}
	return required
}

// Handler returns the handler binding of an intent.
func (s *Snapshot) Handler(intentName string) (store.HandlerType, map[string]any, error) {
	intent := s.byName[intentName]
	if intent == nil {
		return "", nil, errors.Errorf("intent %s not registered", intentName)
	}
	return intent.HandlerType, intent.HandlerConfig, nil
}

// Template returns the response template of an intent for the given kind
// (success, failure, confirmation). Empty string when not configured.
func (s *Snapshot) Template(intentName, kind string) string {
	intent := s.byName[intentName]
	if intent == nil {
		return ""
	}
	return intent.Templates[kind]
}
