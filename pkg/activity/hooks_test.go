package activity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func publishedEvent(id string) Event {
	return Published{SnapshotID: id, Version: 1, Source: "set"}.Event()
}

func TestEventValidate(t *testing.T) {
	cases := []struct {
		name  string
		event Event
		ok    bool
	}{
		{name: "published", event: publishedEvent("s1"), ok: true},
		{name: "action failed", event: ActionFailed{Action: "checkout"}.Event(), ok: true},
		{name: "unknown verb", event: Event{Verb: "create", ObjectType: ObjectTypeState, ObjectID: "1"}},
		{name: "mismatched object type", event: Event{Verb: VerbActionFailed, ObjectType: ObjectTypeState, ObjectID: "1"}},
		{name: "missing object id", event: Published{}.Event()},
		{name: "blank object id", event: ActionFailed{Action: "  "}.Event()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.event.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid event, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidEvent) {
				t.Fatalf("expected ErrInvalidEvent, got %v", err)
			}
		})
	}
}

func TestHooksNotifyRejectsInvalidEvents(t *testing.T) {
	recorder := &Recorder{}
	hooks := Hooks{recorder}
	if err := hooks.Notify(context.Background(), Event{}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	if len(recorder.Events()) != 0 {
		t.Fatalf("expected no events recorded, got %d", len(recorder.Events()))
	}
	if err := (Hooks{}).Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("expected empty hooks to ignore events, got %v", err)
	}
}

func TestHooksNotifyFanOutAndJoinErrors(t *testing.T) {
	recorder := &Recorder{}
	var ctxSeen bool
	boom1, boom2 := errors.New("boom1"), errors.New("boom2")
	hooks := Hooks{
		HookFunc(func(ctx context.Context, event Event) error {
			ctxSeen = ctx != nil
			event.Metadata["source"] = "mutated"
			return nil
		}),
		recorder,
		HookFunc(func(context.Context, Event) error { return boom1 }),
		nil,
		HookFunc(func(context.Context, Event) error { return boom2 }),
	}

	event := publishedEvent("s1")
	err := hooks.Notify(nil, event)
	if !errors.Is(err, boom1) || !errors.Is(err, boom2) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if !ctxSeen {
		t.Fatalf("expected context fallback to be non-nil")
	}
	events := recorder.Events()
	if len(events) != 1 {
		t.Fatalf("expected event to be recorded once, got %d", len(events))
	}
	if events[0].Metadata["source"] != "set" || event.Metadata["source"] != "set" {
		t.Fatalf("expected each hook to get its own metadata, got %v", events[0].Metadata)
	}
}

func TestHooksCompact(t *testing.T) {
	if got := (Hooks{nil, nil}).Compact(); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
	hook := HookFunc(func(context.Context, Event) error { return nil })
	if got := (Hooks{nil, hook}).Compact(); len(got) != 1 {
		t.Fatalf("expected one hook, got %d", len(got))
	}
}

func TestEmitterStampsStoreIdentity(t *testing.T) {
	recorder := &Recorder{}
	emitter := NewEmitter(" cart ", "", Hooks{nil, recorder})
	emitter.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	if !emitter.Enabled() {
		t.Fatalf("expected emitter to be enabled")
	}

	ctx := WithActor(context.Background(), Actor{ActorID: " a1 "})
	if err := emitter.Emit(ctx, publishedEvent("s1")); err != nil {
		t.Fatalf("emit: %v", err)
	}
	got := recorder.Events()[0]
	if got.Store != "cart" || got.Channel != DefaultChannel {
		t.Fatalf("unexpected identity: %+v", got)
	}
	if got.Actor.ActorID != "a1" {
		t.Fatalf("expected actor from context, got %+v", got.Actor)
	}
	if !got.OccurredAt.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected stamped time, got %v", got.OccurredAt)
	}
}

func TestEmitterKeepsExplicitFields(t *testing.T) {
	recorder := &Recorder{}
	emitter := NewEmitter("cart", "audit", Hooks{recorder})

	at := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	event := publishedEvent("s1")
	event.Store, event.Channel, event.OccurredAt = "other", "custom", at
	event.Actor = Actor{UserID: "u1"}

	ctx := WithActor(context.Background(), Actor{ActorID: "ignored"})
	if err := emitter.Emit(ctx, event); err != nil {
		t.Fatalf("emit: %v", err)
	}
	got := recorder.Events()[0]
	if got.Store != "other" || got.Channel != "custom" || !got.OccurredAt.Equal(at) || got.Actor.UserID != "u1" || got.Actor.ActorID != "" {
		t.Fatalf("expected explicit fields preserved, got %+v", got)
	}
}

func TestEmitterWithoutHooksIsDisabled(t *testing.T) {
	emitter := NewEmitter("cart", "", Hooks{nil})
	if emitter.Enabled() {
		t.Fatalf("expected emitter to be disabled")
	}
	if err := emitter.Emit(context.Background(), Event{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	var nilEmitter *Emitter
	if nilEmitter.Enabled() {
		t.Fatalf("expected nil emitter to be disabled")
	}
}

func TestRecorderVerbs(t *testing.T) {
	recorder := &Recorder{Err: errors.New("full")}
	hooks := Hooks{recorder}
	_ = hooks.Notify(context.Background(), publishedEvent("s1"))
	_ = hooks.Notify(context.Background(), ActionFailed{Action: "checkout"}.Event())

	verbs := recorder.Verbs()
	if len(verbs) != 2 || verbs[0] != VerbStatePublished || verbs[1] != VerbActionFailed {
		t.Fatalf("unexpected verbs %v", verbs)
	}
}
