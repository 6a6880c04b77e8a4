// Package events delivers AlertTriggered events to downstream sinks.
package events

import (
	"context"
	"errors"

	"github.com/offmarket/offmarket/internal/domain"
)

type Publisher interface {
	Publish(ctx context.Context, event domain.AlertTriggered) error
}

// Fanout publishes every event to all sinks. A failing sink does not stop the
// others; their errors are joined.
type Fanout struct {
	sinks []Publisher
}

func NewFanout(sinks ...Publisher) *Fanout {
	kept := make([]Publisher, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			kept = append(kept, sink)
		}
	}
	return &Fanout{sinks: kept}
}

func (f *Fanout) Publish(ctx context.Context, event domain.AlertTriggered) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) Len() int {
	return len(f.sinks)
}
