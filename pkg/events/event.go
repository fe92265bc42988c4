package events

import "time"

// Event is anything published on the run stream.
type Event interface {
	EventType() string
	Payload() map[string]interface{}
	Timestamp() time.Time
}

// Run lifecycle event codes.
const (
	RunStarted = "RUN_STARTED"
	RunSettled = "RUN_SETTLED"
	RunFailed  = "RUN_FAILED"
)

// RunEvent marks a step in one run's life. Fields carries the per-type
// details (image count, error kind, artifact counts).
type RunEvent struct {
	Type       string
	SessionID  string
	RunID      string
	Fields     map[string]interface{}
	OccurredAt time.Time
}

func NewRunEvent(eventType, sessionID, runID string, fields map[string]interface{}) RunEvent {
	return RunEvent{
		Type:       eventType,
		SessionID:  sessionID,
		RunID:      runID,
		Fields:     fields,
		OccurredAt: time.Now(),
	}
}

func (e RunEvent) EventType() string { return e.Type }

func (e RunEvent) Timestamp() time.Time { return e.OccurredAt }

// Payload flattens the ids into Fields without mutating it.
func (e RunEvent) Payload() map[string]interface{} {
	out := make(map[string]interface{}, len(e.Fields)+2)
	for k, v := range e.Fields {
		out[k] = v
	}
	out["session_id"] = e.SessionID
	out["run_id"] = e.RunID
	return out
}

// RunEventFrom rebuilds a RunEvent from a decoded payload.
func RunEventFrom(eventType string, payload map[string]interface{}, at time.Time) RunEvent {
	ev := RunEvent{Type: eventType, Fields: make(map[string]interface{}, len(payload)), OccurredAt: at}
	for k, v := range payload {
		switch k {
		case "session_id":
			ev.SessionID, _ = v.(string)
		case "run_id":
			ev.RunID, _ = v.(string)
		default:
			ev.Fields[k] = v
		}
	}
	return ev
}
