package store

import (
	"context"

	"github.com/goliatone/go-store/pkg/activity"
)

// WithActivityHooks emits a store.state.published event for every snapshot
// the store publishes, and store.action.failed for failed dispatches. Nil
// hooks are dropped. Attach an actor to the write context with
// activity.WithActor to have it recorded on the events.
func WithActivityHooks(hooks activity.Hooks) Option {
	normalized := hooks.Compact()
	return func(cfg *storeConfig) {
		cfg.activityHooks = normalized
	}
}

// ActivityHooks returns a copy of the configured activity hooks.
func (s *Store) ActivityHooks() activity.Hooks {
	if s == nil {
		return nil
	}
	return s.cfg.activityHooks.Compact()
}

func (s *Store) emitPublished(ctx context.Context, pub publication) {
	if !s.emitter.Enabled() {
		return
	}
	event := activity.Published{
		SnapshotID:     pub.next.id,
		PrevSnapshotID: pub.prev.id,
		Version:        pub.next.version,
		Source:         pub.source,
		Action:         pub.action,
		ChangedKeys:    changedKeys(pub.prev, pub.next),
	}.Event()
	// The actor is the publisher's, not the drainer's.
	if err := s.emitter.Emit(activity.WithActor(ctx, pub.actor), event); err != nil {
		s.logger.Warn("activity hook failed", "verb", event.Verb, "error", err)
	}
}

func (s *Store) emitActionFailed(ctx context.Context, action string, snap *Snapshot, actionErr error) {
	if !s.emitter.Enabled() {
		return
	}
	event := activity.ActionFailed{
		Action:     action,
		SnapshotID: snap.id,
		Version:    snap.version,
		Err:        actionErr,
	}.Event()
	if err := s.emitter.Emit(ctx, event); err != nil {
		s.logger.Warn("activity hook failed", "verb", event.Verb, "error", err)
	}
}
