package infra

import (
	"context"
	"errors"

	"admission-gateway/middleware/ratelimit/domain"
)

// StatsFanout records each event in every store and joins their errors.
type StatsFanout []domain.StatsStore

func (f StatsFanout) Record(ctx context.Context, ev domain.StatsEvent) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
