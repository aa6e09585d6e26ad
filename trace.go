package store

import (
	"encoding/json"
	"fmt"

	"github.com/goliatone/go-store/track"
)

// Trace lists the state paths a computed value depends on, as recorded by a
// tracked evaluation. Paths use the notation of track.Paths: "a.b" for a
// read, "a.*" for key enumeration, "a.#" for a length read, "a.b?" for an
// existence check and "a.**" for a node used as a whole.
type Trace struct {
	Name       string   `json:"name"`
	SnapshotID string   `json:"snapshot_id,omitempty"`
	Version    uint64   `json:"version"`
	Paths      []string `json:"paths"`
}

// ToJSON serialises the trace into JSON for logging or transport helpers.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// TraceFromJSON deserialises a JSON payload that was previously generated via
// ToJSON.
func TraceFromJSON(payload []byte) (Trace, error) {
	type alias Trace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	return Trace(trace), nil
}

// Explain evaluates the computed name against s with a fresh access map and
// reports the paths it read. The cache is neither consulted nor updated.
func (s *Snapshot) Explain(name string) (Trace, error) {
	def, ok := s.store.computeds[name]
	if !ok {
		return Trace{}, fmt.Errorf("%w: %q", ErrUnknownComputed, name)
	}
	am := track.NewAccessMap()
	view := &computedView{View: track.Wrap(s.root, am), snap: s, frame: &frame{name: name}}
	if _, err := def.fn(view); err != nil {
		return Trace{}, wrapEvaluationError(def.name, def.engine, def.expr, err)
	}
	return Trace{
		Name:       name,
		SnapshotID: s.id,
		Version:    s.version,
		Paths:      track.Paths(s.root, am),
	}, nil
}
