package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"studykit-be/internal/entity"
	"studykit-be/internal/pkg/logger"
	"studykit-be/pkg/events"
	"studykit-be/pkg/llm"
	"studykit-be/pkg/store"

	"github.com/ThreeDotsLabs/watermill/message"
)

// StoreResolver finds the artifact store of a live session.
type StoreResolver func(sessionID string) (*store.ArtifactStore, bool)

// Listener is told about every applied transition.
type Listener func(sessionID string, snapshot store.Session)

// Result reports what Apply did with an event.
type Result struct {
	Applied     bool
	BatchNumber int
}

// Reducer is the only writer of run-scoped artifacts. Every event, whether
// it arrives over the bus or from a synchronous stage, goes through Apply
// and is applied one at a time.
type Reducer struct {
	mu        sync.Mutex
	resolve   StoreResolver
	listeners []Listener
	runs      RunPublisher
	logger    logger.ILogger
}

func NewReducer(resolve StoreResolver, runs RunPublisher, log logger.ILogger) *Reducer {
	if runs == nil {
		runs = NopRunPublisher{}
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Reducer{resolve: resolve, runs: runs, logger: log}
}

// Subscribe registers l for every applied transition. Not safe to call
// once events are flowing.
func (r *Reducer) Subscribe(l Listener) {
	r.listeners = append(r.listeners, l)
}

// Notify pushes the current snapshot of st to listeners. Used for
// transitions made outside Apply (run start, retries, view changes).
func (r *Reducer) Notify(st *store.ArtifactStore) {
	if len(r.listeners) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publish(st.ID(), st.Snapshot())
}

// publish runs under r.mu so listeners see snapshots in transition order.
func (r *Reducer) publish(sessionID string, snap store.Session) {
	for _, l := range r.listeners {
		l(sessionID, snap)
	}
}

func (r *Reducer) Apply(ev events.ArtifactEvent) Result {
	st, ok := r.resolve(ev.SessionID)
	if !ok {
		r.logger.Warn("REDUCER", "Dropping event for unknown session", map[string]interface{}{
			"session_id": ev.SessionID,
			"kind":       ev.Kind,
		})
		return Result{}
	}

	r.mu.Lock()
	res := r.apply(st, ev)
	var snap store.Session
	if res.Applied {
		snap = st.Snapshot()
		r.publish(st.ID(), snap)
	}
	r.mu.Unlock()

	if !res.Applied {
		r.logger.Info("REDUCER", "Discarded stale completion", map[string]interface{}{
			"session_id": ev.SessionID,
			"run_id":     ev.RunID,
			"kind":       ev.Kind,
		})
		return res
	}

	r.logger.Debug("REDUCER", "Applied transition", map[string]interface{}{
		"session_id": ev.SessionID,
		"kind":       ev.Kind,
		"outcome":    ev.Outcome,
	})

	if store.ArtifactKind(ev.Kind).IsDerivation() && !snap.Loading.Pipeline() {
		r.runs.RunSettled(context.Background(), snap)
	}
	return res
}

func (r *Reducer) apply(st *store.ArtifactStore, ev events.ArtifactEvent) Result {
	kind := store.ArtifactKind(ev.Kind)

	if !ev.Succeeded() {
		return r.applyFailure(st, kind, ev)
	}

	switch kind {
	case store.KindExtraction:
		var v entity.ExtractionResult
		if !r.decode(ev, &v) {
			return r.applyFailure(st, kind, failed(ev, llm.ErrMalformedResponse))
		}
		return Result{Applied: st.SetExtraction(ev.RunID, v)}

	case store.KindNote:
		var v entity.MasterNote
		if !r.decode(ev, &v) {
			return r.applyFailure(st, kind, failed(ev, llm.ErrMalformedResponse))
		}
		return Result{Applied: st.SetNote(ev.RunID, v)}

	case store.KindSummary:
		var v string
		if !r.decode(ev, &v) {
			return r.applyFailure(st, kind, failed(ev, llm.ErrMalformedResponse))
		}
		return Result{Applied: st.SetSummary(ev.RunID, v)}

	case store.KindPractice:
		var v []entity.MCQBatch
		if !r.decode(ev, &v) {
			return r.applyFailure(st, kind, failed(ev, llm.ErrMalformedResponse))
		}
		return Result{Applied: st.SetBatches(ev.RunID, v)}

	case store.KindFlashcards:
		var v []entity.Flashcard
		if !r.decode(ev, &v) {
			return r.applyFailure(st, kind, failed(ev, llm.ErrMalformedResponse))
		}
		return Result{Applied: st.SetFlashcards(ev.RunID, v)}

	case store.KindBonusExtension:
		var v string
		if !r.decode(ev, &v) {
			return r.applyFailure(st, kind, failed(ev, llm.ErrMalformedResponse))
		}
		return Result{Applied: st.AppendBonus(ev.RunID, v)}

	case store.KindBatchExtension:
		var v entity.MCQBatch
		if !r.decode(ev, &v) {
			return r.applyFailure(st, kind, failed(ev, llm.ErrMalformedResponse))
		}
		n, ok := st.AppendBatch(ev.RunID, v)
		return Result{Applied: ok, BatchNumber: n}

	case store.KindClarification:
		return Result{Applied: st.SettleOperation(ev.RunID, ev.Epoch, kind, nil)}
	}

	r.logger.Warn("REDUCER", "Unknown artifact kind", map[string]interface{}{"kind": ev.Kind})
	return Result{}
}

func (r *Reducer) applyFailure(st *store.ArtifactStore, kind store.ArtifactKind, ev events.ArtifactEvent) Result {
	switch {
	case kind == store.KindExtraction:
		return Result{Applied: st.FailRun(ev.RunID, ev.Message)}
	case kind.IsDerivation():
		return Result{Applied: st.SettleFailure(ev.RunID, kind)}
	default:
		n := &store.Notice{Operation: kind, Kind: ev.ErrorKind, Message: ev.Message}
		return Result{Applied: st.SettleOperation(ev.RunID, ev.Epoch, kind, n)}
	}
}

func (r *Reducer) decode(ev events.ArtifactEvent, v interface{}) bool {
	if err := json.Unmarshal(ev.Data, v); err != nil {
		r.logger.Error("REDUCER", "Undecodable artifact payload", map[string]interface{}{
			"kind":  ev.Kind,
			"error": err.Error(),
		})
		return false
	}
	return true
}

// Consume subscribes to topic and applies every message in arrival order
// until ctx is done.
func (r *Reducer) Consume(ctx context.Context, sub message.Subscriber, topic string) error {
	messages, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			r.handle(msg)
		}
	}()

	return nil
}

func (r *Reducer) handle(msg *message.Message) {
	var ev events.ArtifactEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		r.logger.Error("REDUCER", "Failed to unmarshal artifact event", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		msg.Ack() // Ack invalid messages to prevent infinite redelivery
		return
	}
	r.Apply(ev)
	msg.Ack()
}

// succeeded builds the event for a successful call. A value that cannot be
// encoded is reported as a malformed response instead.
func succeeded(sessionID, runID string, kind store.ArtifactKind, v interface{}) events.ArtifactEvent {
	ev := events.ArtifactEvent{
		SessionID:  sessionID,
		RunID:      runID,
		Kind:       string(kind),
		Outcome:    events.OutcomeSucceeded,
		OccurredAt: time.Now(),
	}
	data, err := json.Marshal(v)
	if err != nil {
		return failed(ev, llm.ErrMalformedResponse)
	}
	ev.Data = data
	return ev
}

func failedEvent(sessionID, runID string, kind store.ArtifactKind, err error) events.ArtifactEvent {
	return failed(events.ArtifactEvent{
		SessionID: sessionID,
		RunID:     runID,
		Kind:      string(kind),
	}, err)
}

func failed(ev events.ArtifactEvent, err error) events.ArtifactEvent {
	ev.Outcome = events.OutcomeFailed
	ev.Data = nil
	ev.ErrorKind = string(llm.KindOf(err))
	ev.Message = llm.UserMessage(err)
	ev.OccurredAt = time.Now()
	return ev
}
