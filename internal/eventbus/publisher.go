package eventbus

import (
	"context"

	"limscore/pkg/domain"
)

// Publisher adapts Bus.Publish to core.EventPublisher's
// Publish(ctx, domain.Event) error shape, discarding the stream entry id
// that callers uninterested in it don't need.
type Publisher struct {
	Bus *Bus
}

// Publish satisfies core.EventPublisher.
func (p Publisher) Publish(ctx context.Context, event domain.Event) error {
	_, err := p.Bus.Publish(ctx, event)
	return err
}
