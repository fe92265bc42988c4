package events

import (
	"encoding/json"
	"time"
)

type Outcome string

const (
	OutcomeSucceeded Outcome = "SUCCEEDED"
	OutcomeFailed    Outcome = "FAILED"
)

// ArtifactEvent is emitted once per settled gateway call. It is tagged with
// the session and run it was dispatched for; Data holds the JSON encoded
// artifact on success.
type ArtifactEvent struct {
	SessionID  string          `json:"session_id"`
	RunID      string          `json:"run_id"`
	Epoch      uint64          `json:"epoch,omitempty"`
	Kind       string          `json:"kind"`
	Outcome    Outcome         `json:"outcome"`
	Data       json.RawMessage `json:"data,omitempty"`
	ErrorKind  string          `json:"error_kind,omitempty"`
	Message    string          `json:"message,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func (e ArtifactEvent) EventType() string {
	return "ARTIFACT_" + string(e.Outcome)
}

func (e ArtifactEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id": e.SessionID,
		"run_id":     e.RunID,
		"kind":       e.Kind,
		"outcome":    string(e.Outcome),
		"error_kind": e.ErrorKind,
	}
}

func (e ArtifactEvent) Timestamp() time.Time {
	return e.OccurredAt
}

func (e ArtifactEvent) Succeeded() bool {
	return e.Outcome == OutcomeSucceeded
}
