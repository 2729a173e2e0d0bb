package eventbus

import (
	"context"

	"github.com/google/uuid"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/events"
)

// Noop drops every event. Used when EVENT_BUS_TYPE is "none".
type Noop struct{}

func (Noop) Publish(context.Context, string, Event) error { return nil }
func (Noop) Handle(events.EventType, EventHandler) error { return nil }
func (Noop) Subscribe(context.Context) error { return nil }
func (Noop) Close() error { return nil }
func (Noop) GenerateID() string { return uuid.NewString() }
