package domain

import (
	"context"
	"time"
)

// StatsEvent is one admission decision.
//
// It is HTTP-agnostic: Method/Path are plain strings. Watch the cardinality
// of Key and Path when persisting them.
type StatsEvent struct {
	Policy  string
	Key     Key
	Allowed bool
	// Failed marks decisions taken while the counter store was unavailable.
	Failed bool

	Method string
	Path   string

	At time.Time
}

// StatsStore persists admission statistics. Callers treat errors as best-effort.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
