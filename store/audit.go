package store

// AuditLog records one orchestrator decision for diagnostics.
// Unlike conversation turns, audit rows include internal detail
// (strategy attempts, confirmation strategy, handler timing).
type AuditLog struct {
	ID        int64
	SessionID string
	UserID    string
	Action    string // turn, confirmation, ambiguity_resolution, handler_call, cleanup
	Detail    map[string]any
	CreatedTs int64
}

type FindAuditLog struct {
	SessionID *string
	Action    *string
	Limit     *int
}

type DeleteAuditLog struct {
	BeforeTs   int64
	BatchLimit int
}

// CacheInvalidationLog records registry/session cache invalidations so
// that coherence issues can be traced after the fact.
type CacheInvalidationLog struct {
	ID        int64
	CacheName string
	Key       string
	Reason    string
	CreatedTs int64
}

type DeleteCacheInvalidationLog struct {
	BeforeTs   int64
	BatchLimit int
}
