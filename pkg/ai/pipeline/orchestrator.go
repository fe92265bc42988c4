package pipeline

import (
	"context"
	"fmt"
	"sync"

	"studykit-be/internal/entity"
	"studykit-be/pkg/events"
	"studykit-be/pkg/llm"
	"studykit-be/pkg/prompt"
	"studykit-be/pkg/store"

	"github.com/google/uuid"
)

// Orchestrator runs extraction and then fans out the four derivations.
type Orchestrator struct {
	engine
	bus  Bus
	runs RunPublisher
	wg   sync.WaitGroup
}

func NewOrchestrator(d Deps) *Orchestrator {
	runs := d.Runs
	if runs == nil {
		runs = NopRunPublisher{}
	}
	return &Orchestrator{engine: newEngine(d), bus: d.Bus, runs: runs}
}

// StartRun blocks through extraction and returns once the derivations are
// dispatched. A failed extraction fails the whole run and is returned.
func (o *Orchestrator) StartRun(ctx context.Context, st *store.ArtifactStore, lang entity.Language) (string, error) {
	if !lang.Valid() {
		return "", store.ErrInvalidLanguage
	}
	runID := uuid.NewString()
	if err := st.BeginRun(runID, lang); err != nil {
		return "", err
	}
	images := st.Images()
	o.reducer.Notify(st)
	o.runs.RunStarted(ctx, st.ID(), runID, len(images), string(lang))
	o.logger.Info("PIPELINE", "Run started", map[string]interface{}{
		"session_id": st.ID(),
		"run_id":     runID,
		"images":     len(images),
		"language":   lang,
	})

	parts := make([]llm.Image, 0, len(images))
	for _, img := range images {
		parts = append(parts, llm.Image{MIMEType: img.MIMEType, Data: img.Data})
	}

	var res entity.ExtractionResult
	resp, err := o.call(ctx, prompt.Extraction, prompt.Vars{Language: lang.Name()}, parts...)
	if err == nil {
		res, err = toExtraction(resp)
	}
	if err != nil {
		o.reducer.Apply(failedEvent(st.ID(), runID, store.KindExtraction, err))
		o.runs.RunFailed(ctx, st.ID(), runID, string(llm.KindOf(err)))
		o.logger.Error("PIPELINE", "Extraction failed, run aborted", map[string]interface{}{
			"session_id": st.ID(),
			"run_id":     runID,
			"error":      err.Error(),
		})
		return runID, fmt.Errorf("extraction: %w", err)
	}

	if !o.reducer.Apply(succeeded(st.ID(), runID, store.KindExtraction, res)).Applied {
		return runID, ErrRunSuperseded
	}
	o.logger.Info("PIPELINE", "Extraction complete", map[string]interface{}{
		"session_id": st.ID(),
		"run_id":     runID,
		"subject":    res.Subject,
		"chars":      len([]rune(res.Text)),
	})

	rc := store.RunContext{RunID: runID, Language: lang, Extraction: res}
	for _, kind := range store.Derivations {
		o.dispatch(ctx, st.ID(), rc, kind)
	}
	return runID, nil
}

// RetryArtifact re-dispatches one derivation of the current run whose
// artifact is missing.
func (o *Orchestrator) RetryArtifact(ctx context.Context, st *store.ArtifactStore, kind store.ArtifactKind) error {
	if !kind.IsDerivation() {
		return ErrNotRetriable
	}
	rc, err := st.BeginRetry(kind)
	if err != nil {
		return err
	}
	o.reducer.Notify(st)
	o.logger.Info("PIPELINE", "Retrying derivation", map[string]interface{}{
		"session_id": st.ID(),
		"run_id":     rc.RunID,
		"kind":       kind,
	})
	o.dispatch(ctx, st.ID(), rc, kind)
	return nil
}

// Wait blocks until every dispatched derivation has emitted its event.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// dispatch runs one derivation detached from the caller's cancellation;
// it settles through the reducer whatever the outcome.
func (o *Orchestrator) dispatch(ctx context.Context, sessionID string, rc store.RunContext, kind store.ArtifactKind) {
	ctx = context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.emit(o.derive(ctx, sessionID, rc, kind))
	}()
}

func (o *Orchestrator) emit(ev events.ArtifactEvent) {
	if o.bus != nil {
		err := o.bus.Publish(ev)
		if err == nil {
			return
		}
		o.logger.Warn("PIPELINE", "Bus publish failed, applying directly", map[string]interface{}{
			"kind":  ev.Kind,
			"error": err.Error(),
		})
	}
	o.reducer.Apply(ev)
}

func (o *Orchestrator) derive(ctx context.Context, sessionID string, rc store.RunContext, kind store.ArtifactKind) events.ArtifactEvent {
	var (
		value interface{}
		err   error
		resp  *llm.Response
	)

	switch kind {
	case store.KindNote:
		if resp, err = o.call(ctx, prompt.Note, o.vars(rc)); err == nil {
			value, err = toMasterNote(resp)
		}
	case store.KindSummary:
		if resp, err = o.call(ctx, prompt.Summary, o.vars(rc)); err == nil {
			value = resp.Text
		}
	case store.KindPractice:
		if resp, err = o.call(ctx, prompt.Practice, o.vars(rc)); err == nil {
			var b entity.MCQBatch
			if b, err = toBatch(resp); err == nil {
				b.BatchNumber = 1
				value = []entity.MCQBatch{b}
			}
		}
	case store.KindFlashcards:
		if resp, err = o.call(ctx, prompt.Flashcards, o.vars(rc)); err == nil {
			value, err = toFlashcards(resp, o.cfg.FlashcardCount)
		}
	default:
		err = ErrNotRetriable
	}

	if err != nil {
		o.logger.Warn("PIPELINE", "Derivation failed", map[string]interface{}{
			"session_id": sessionID,
			"run_id":     rc.RunID,
			"kind":       kind,
			"error_kind": llm.KindOf(err),
			"error":      err.Error(),
		})
		return failedEvent(sessionID, rc.RunID, kind, err)
	}

	o.logger.Info("PIPELINE", "Derivation complete", map[string]interface{}{
		"session_id": sessionID,
		"run_id":     rc.RunID,
		"kind":       kind,
	})
	return succeeded(sessionID, rc.RunID, kind, value)
}
