package activity

import "slices"

// Published describes one published snapshot.
type Published struct {
	SnapshotID     string
	PrevSnapshotID string
	Version        uint64
	// Source is the store operation that published: "action", "set",
	// "merge", "write-through" and so on.
	Source      string
	Action      string
	ChangedKeys []string
}

// Event builds the store.state.published event. Changed keys are sorted.
func (p Published) Event() Event {
	metadata := map[string]any{}
	if p.Source != "" {
		metadata["source"] = p.Source
	}
	if p.Action != "" {
		metadata["action"] = p.Action
	}
	if p.PrevSnapshotID != "" {
		metadata["prev_snapshot_id"] = p.PrevSnapshotID
	}
	if len(p.ChangedKeys) > 0 {
		keys := slices.Clone(p.ChangedKeys)
		slices.Sort(keys)
		metadata["changed_keys"] = keys
	}
	return Event{
		Verb:       VerbStatePublished,
		ObjectType: ObjectTypeState,
		ObjectID:   p.SnapshotID,
		Version:    p.Version,
		Metadata:   metadata,
	}
}

// ActionFailed describes an action that returned an error. SnapshotID and
// Version name the snapshot current after its partial writes were published.
type ActionFailed struct {
	Action     string
	SnapshotID string
	Version    uint64
	Err        error
}

// Event builds the store.action.failed event.
func (a ActionFailed) Event() Event {
	metadata := map[string]any{}
	if a.SnapshotID != "" {
		metadata["snapshot_id"] = a.SnapshotID
	}
	if a.Err != nil {
		metadata["error"] = a.Err.Error()
	}
	return Event{
		Verb:       VerbActionFailed,
		ObjectType: ObjectTypeAction,
		ObjectID:   a.Action,
		Version:    a.Version,
		Metadata:   metadata,
	}
}
