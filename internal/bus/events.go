package bus

import (
	"context"
	"fmt"

	"github.com/tendant/simple-webp/pkg/schema"
)

// JSONPublisher is satisfied by *Client.
type JSONPublisher interface {
	PublishJSON(subject string, v any) error
}

// EventPublisher publishes conversion events over NATS. Per-key events go to
// ConvertedSubject, the run summary to DoneSubject.
type EventPublisher struct {
	pub              JSONPublisher
	ConvertedSubject string
	DoneSubject      string
}

func NewEventPublisher(pub JSONPublisher, convertedSubject, doneSubject string) *EventPublisher {
	return &EventPublisher{pub: pub, ConvertedSubject: convertedSubject, DoneSubject: doneSubject}
}

func (p *EventPublisher) NotifyOutcome(ctx context.Context, ev schema.ConversionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.pub.PublishJSON(p.ConvertedSubject, ev); err != nil {
		return fmt.Errorf("publish %s: %w", p.ConvertedSubject, err)
	}
	return nil
}

func (p *EventPublisher) NotifyBatch(ctx context.Context, done schema.BatchDone) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.pub.PublishJSON(p.DoneSubject, done); err != nil {
		return fmt.Errorf("publish %s: %w", p.DoneSubject, err)
	}
	return nil
}
