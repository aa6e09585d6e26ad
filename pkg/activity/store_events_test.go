package activity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishedEvent(t *testing.T) {
	input := Published{
		SnapshotID:     "snap-2",
		PrevSnapshotID: "snap-1",
		Version:        2,
		Source:         "action",
		Action:         "addItem",
		ChangedKeys:    []string{"total", "items"},
	}

	event := input.Event()

	assert.Equal(t, VerbStatePublished, event.Verb)
	assert.Equal(t, ObjectTypeState, event.ObjectType)
	assert.Equal(t, "snap-2", event.ObjectID)
	assert.Equal(t, uint64(2), event.Version)
	assert.Equal(t, map[string]any{
		"source":           "action",
		"action":           "addItem",
		"prev_snapshot_id": "snap-1",
		"changed_keys":     []string{"items", "total"},
	}, event.Metadata)
	assert.Equal(t, []string{"total", "items"}, input.ChangedKeys, "input keys are not sorted in place")
	assert.NoError(t, event.Validate())
}

func TestActionFailedEvent(t *testing.T) {
	event := ActionFailed{
		Action:     "checkout",
		SnapshotID: "snap-3",
		Version:    3,
		Err:        errors.New("payment declined"),
	}.Event()

	assert.Equal(t, VerbActionFailed, event.Verb)
	assert.Equal(t, ObjectTypeAction, event.ObjectType)
	assert.Equal(t, "checkout", event.ObjectID)
	assert.Equal(t, uint64(3), event.Version)
	assert.Equal(t, "payment declined", event.Metadata["error"])
	assert.Equal(t, "snap-3", event.Metadata["snapshot_id"])
	assert.NoError(t, event.Validate())
}
