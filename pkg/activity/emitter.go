package activity

import (
	"context"
	"strings"
	"time"
)

// DefaultChannel is used when an emitter is created without a channel.
const DefaultChannel = "store"

// Emitter stamps events with the identity of one store before handing them
// to its hooks.
type Emitter struct {
	store   string
	channel string
	hooks   Hooks
	now     func() time.Time
}

// NewEmitter returns an emitter for the named store. Nil hooks are dropped.
func NewEmitter(store, channel string, hooks Hooks) *Emitter {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultChannel
	}
	return &Emitter{
		store:   strings.TrimSpace(store),
		channel: channel,
		hooks:   hooks.Compact(),
		now:     time.Now,
	}
}

// Enabled reports whether any hook is listening.
func (e *Emitter) Enabled() bool {
	return e != nil && len(e.hooks) > 0
}

// Emit fills in the store name, the channel, the actor carried by ctx and
// the time, unless event already sets them, then notifies the hooks.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Enabled() {
		return nil
	}
	if event.Store == "" {
		event.Store = e.store
	}
	if event.Channel == "" {
		event.Channel = e.channel
	}
	if event.Actor == (Actor{}) {
		if actor, ok := ActorFrom(ctx); ok {
			event.Actor = actor
		}
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = e.now()
	}
	return e.hooks.Notify(ctx, event)
}
