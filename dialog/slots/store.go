package slots

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/leichangqing/intelligence-intent-sub003/store"
)

// SlotStore is the authoritative per-conversation slot facade (write path
// through the transformer, read path through the per-session cache).
type SlotStore struct {
	store       *store.Store
	transformer *Transformer
}

// NewSlotStore creates the slot store facade.
func NewSlotStore(s *store.Store) *SlotStore {
	return &SlotStore{store: s, transformer: NewTransformer()}
}

// Transformer exposes the shared transformer instance.
func (ss *SlotStore) Transformer() *Transformer {
	return ss.transformer
}

// Current returns the latest slot value per (session, slot_name), serving
// from the hot cache and reconstructing from the store on miss.
func (ss *SlotStore) Current(ctx context.Context, sessionID string) (map[string]*CachedSlot, error) {
	if v, ok := ss.store.SlotCache().Get(sessionID); ok {
		if cached, ok := v.(map[string]*CachedSlot); ok {
			return cached, nil
		}
	}

	rows, err := ss.store.ListSlotValues(ctx, &store.FindSlotValue{
		SessionID:  &sessionID,
		LatestOnly: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to read slot values")
	}

	current := make(map[string]*CachedSlot, len(rows))
	for _, row := range rows {
		current[row.SlotName] = FromRow(row)
	}
	ss.store.SlotCache().Set(sessionID, current)
	return current, nil
}

// WriteSlot is one extraction to persist.
type WriteSlot struct {
	SessionID    string
	TurnID       int64
	Slot         *store.SlotDefinition
	OriginalText string
	RawValue     string
	Confidence   float64
	Method       store.ExtractionMethod
	Now          time.Time
}

// Write normalizes and persists one slot extraction. Re-supplying a slot
// that already holds a different value within the same intent scope is
// recorded as a correction; the previous row remains as history.
func (ss *SlotStore) Write(ctx context.Context, in WriteSlot) (*store.SlotValue, error) {
	normalized := ss.transformer.Normalize(in.Slot, in.RawValue, in.Now)

	current, err := ss.Current(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}

	method := in.Method
	if method == "" {
		method = store.ExtractionNLU
	}
	if method == store.ExtractionNLU || method == store.ExtractionRegex {
		if prior, ok := current[in.Slot.Name]; ok &&
			prior.Normalized != "" && prior.Normalized != normalized.Value {
			method = store.ExtractionCorrection
		}
	}

	row := &store.SlotValue{
		ConversationTurnID: in.TurnID,
		SessionID:          in.SessionID,
		SlotName:           in.Slot.Name,
		IntentName:         in.Slot.IntentName,
		OriginalText:       in.OriginalText,
		ExtractedValue:     in.RawValue,
		NormalizedValue:    normalized.Value,
		Confidence:         in.Confidence,
		ExtractionMethod:   method,
		ValidationStatus:   normalized.Status,
		ValidationError:    normalized.Error,
		CreatedTs:          in.Now.Unix(),
	}
	created, err := ss.store.CreateSlotValue(ctx, row)
	if err != nil {
		return nil, errors.Wrap(err, "failed to persist slot value")
	}
	// CreateSlotValue invalidated the per-session entry; put the merged
	// view back so the next read stays hot.
	ss.store.SlotCache().Set(in.SessionID,
		Merge(current, map[string]*CachedSlot{created.SlotName: FromRow(created)}))
	slog.Debug("slot written",
		"session", in.SessionID, "slot", in.Slot.Name,
		"status", normalized.Status, "method", method)
	return created, nil
}

// ApplyDefaults persists configured default values for slots of the intent
// that have a default and no current value yet.
func (ss *SlotStore) ApplyDefaults(ctx context.Context, sessionID string, turnID int64, defs []*store.SlotDefinition, now time.Time) error {
	current, err := ss.Current(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, def := range defs {
		if def.DefaultValue == "" {
			continue
		}
		if cached, ok := current[def.Name]; ok && cached.Normalized != "" {
			continue
		}
		if _, err := ss.Write(ctx, WriteSlot{
			SessionID:    sessionID,
			TurnID:       turnID,
			Slot:         def,
			OriginalText: def.DefaultValue,
			RawValue:     def.DefaultValue,
			Confidence:   1.0,
			Method:       store.ExtractionDefault,
			Now:          now,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Inherit copies values for same-named slots from a prior intent scope into
// the new intent. Explicit values supplied in the current turn must be
// written after this call so they override the inherited rows.
func (ss *SlotStore) Inherit(ctx context.Context, sessionID string, turnID int64, defs []*store.SlotDefinition, now time.Time) error {
	current, err := ss.Current(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, def := range defs {
		cached, ok := current[def.Name]
		if !ok || cached.Status != store.ValidationValid || cached.Normalized == "" {
			continue
		}
		if cached.Intent == def.IntentName {
			continue
		}
		if _, err := ss.Write(ctx, WriteSlot{
			SessionID:    sessionID,
			TurnID:       turnID,
			Slot:         def,
			OriginalText: cached.Value,
			RawValue:     cached.Normalized,
			Confidence:   cached.Confidence,
			Method:       store.ExtractionInherited,
			Now:          now,
		}); err != nil {
			return err
		}
	}
	return nil
}
