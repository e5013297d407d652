package journal

import (
	"context"
	"errors"

	"basis-arb-bot/internal/strategy"
)

// Fanout records each event to every journal, joining their errors.
type Fanout []strategy.Journal

func (f Fanout) Record(ctx context.Context, ev strategy.TradeEvent) error {
	var errs []error
	for _, j := range f {
		if j == nil {
			continue
		}
		if err := j.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
