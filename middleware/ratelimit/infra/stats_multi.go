package infra

import (
	"context"

	"admission-gateway/middleware/ratelimit/domain"

	"go.uber.org/multierr"
)

// MultiStats repassa cada evento para todos os stores; os erros são combinados.
type MultiStats []domain.StatsStore

func (m MultiStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var err error
	for _, s := range m {
		if s == nil {
			continue
		}
		err = multierr.Append(err, s.Record(ctx, ev))
	}
	return err
}
