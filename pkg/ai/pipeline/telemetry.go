package pipeline

import (
	"context"
	"time"

	"studykit-be/internal/pkg/logger"
	pkgEvents "studykit-be/pkg/events"
	"studykit-be/pkg/store"
)

// EventPublisher is satisfied by the NATS publisher.
type EventPublisher interface {
	Publish(ctx context.Context, event pkgEvents.Event) error
}

// RunPublisher abstracts run lifecycle telemetry.
type RunPublisher interface {
	RunStarted(ctx context.Context, sessionID, runID string, images int, lang string)
	RunFailed(ctx context.Context, sessionID, runID, errorKind string)
	RunSettled(ctx context.Context, snap store.Session)
}

type NopRunPublisher struct{}

func (NopRunPublisher) RunStarted(context.Context, string, string, int, string) {}
func (NopRunPublisher) RunFailed(context.Context, string, string, string) {}
func (NopRunPublisher) RunSettled(context.Context, store.Session) {}

// NatsRunPublisher implements RunPublisher on top of any EventPublisher.
// Publishing is best effort and bounded so it never holds up a run.
type NatsRunPublisher struct {
	publisher EventPublisher
	logger    logger.ILogger
	timeout   time.Duration
}

func NewNatsRunPublisher(publisher EventPublisher, logger logger.ILogger) *NatsRunPublisher {
	return &NatsRunPublisher{
		publisher: publisher,
		logger:    logger,
		timeout:   2 * time.Second,
	}
}

func (p *NatsRunPublisher) publish(ctx context.Context, evt pkgEvents.RunEvent) {
	if p.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := p.publisher.Publish(ctx, evt); err != nil {
		p.logger.Error("PIPELINE", "Failed to publish "+evt.Type+" event", map[string]interface{}{
			"run_id": evt.RunID,
			"error":  err.Error(),
		})
	}
}

// RunStarted emits RUN_STARTED
func (p *NatsRunPublisher) RunStarted(ctx context.Context, sessionID, runID string, images int, lang string) {
	p.publish(ctx, pkgEvents.NewRunEvent(pkgEvents.RunStarted, sessionID, runID, map[string]interface{}{
		"images":   images,
		"language": lang,
	}))
}

// RunFailed emits RUN_FAILED after a fatal extraction failure
func (p *NatsRunPublisher) RunFailed(ctx context.Context, sessionID, runID, errorKind string) {
	p.publish(ctx, pkgEvents.NewRunEvent(pkgEvents.RunFailed, sessionID, runID, map[string]interface{}{
		"error_kind": errorKind,
	}))
}

// RunSettled emits RUN_SETTLED once every derivation of the run has settled
func (p *NatsRunPublisher) RunSettled(ctx context.Context, snap store.Session) {
	var subject string
	if snap.Extraction != nil {
		subject = string(snap.Extraction.Subject)
	}
	p.publish(ctx, pkgEvents.NewRunEvent(pkgEvents.RunSettled, snap.ID, snap.RunID, map[string]interface{}{
		"subject":     subject,
		"has_note":    snap.MasterNote != nil,
		"has_summary": snap.Summary != nil,
		"batches":     len(snap.Batches),
		"flashcards":  len(snap.Flashcards),
	}))
}
