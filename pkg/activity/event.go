package activity

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"
)

const (
	// VerbStatePublished is emitted once per published snapshot.
	VerbStatePublished = "store.state.published"
	// VerbActionFailed is emitted when an action returns an error; the writes
	// it made before failing are still published.
	VerbActionFailed = "store.action.failed"

	// ObjectTypeState identifies events about a store's state.
	ObjectTypeState = "store.state"
	// ObjectTypeAction identifies events about an action dispatch.
	ObjectTypeAction = "store.action"
)

// ErrInvalidEvent is returned by Hooks.Notify for events no store emits.
var ErrInvalidEvent = errors.New("activity: invalid store event")

// Event is one store occurrence. ObjectID is the snapshot ID for state
// events and the action name for action events.
type Event struct {
	Verb       string
	Store      string
	ObjectType string
	ObjectID   string
	Version    uint64
	Actor      Actor
	Channel    string
	Metadata   map[string]any
	OccurredAt time.Time
}

// Validate checks that the verb and object type belong together and that
// the event names its object.
func (e Event) Validate() error {
	var objectType string
	switch e.Verb {
	case VerbStatePublished:
		objectType = ObjectTypeState
	case VerbActionFailed:
		objectType = ObjectTypeAction
	default:
		return fmt.Errorf("%w: unknown verb %q", ErrInvalidEvent, e.Verb)
	}
	if e.ObjectType != objectType {
		return fmt.Errorf("%w: %s carries object type %q", ErrInvalidEvent, e.Verb, e.ObjectType)
	}
	if strings.TrimSpace(e.ObjectID) == "" {
		return fmt.Errorf("%w: %s without object id", ErrInvalidEvent, e.Verb)
	}
	return nil
}

// clone copies the metadata so hooks cannot reach into each other's event.
func (e Event) clone() Event {
	e.Metadata = maps.Clone(e.Metadata)
	return e
}

// Actor identifies who caused a write. IDs are strings so callers are not
// tied to one UUID type.
type Actor struct {
	ActorID  string
	UserID   string
	TenantID string
}

func (a Actor) trimmed() Actor {
	return Actor{
		ActorID:  strings.TrimSpace(a.ActorID),
		UserID:   strings.TrimSpace(a.UserID),
		TenantID: strings.TrimSpace(a.TenantID),
	}
}

type actorKey struct{}

// WithActor attaches actor to ctx. Events emitted for writes made with ctx
// carry it.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey{}, actor.trimmed())
}

// ActorFrom returns the actor attached to ctx, if any.
func ActorFrom(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}
