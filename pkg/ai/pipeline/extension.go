package pipeline

import (
	"context"
	"strings"

	"studykit-be/internal/entity"
	"studykit-be/pkg/events"
	"studykit-be/pkg/llm"
	"studykit-be/pkg/prompt"
	"studykit-be/pkg/store"
)

// ExtensionEngine grows existing artifacts of the current run. Both
// operations reuse the language the run started with.
type ExtensionEngine struct {
	engine
}

func NewExtensionEngine(d Deps) *ExtensionEngine {
	return &ExtensionEngine{engine: newEngine(d)}
}

// ExtendBonus appends new material to layer3 of the master note.
func (x *ExtensionEngine) ExtendBonus(ctx context.Context, st *store.ArtifactStore) error {
	rc, err := st.BeginOperation(store.KindBonusExtension)
	if err != nil {
		return err
	}
	x.reducer.Notify(st)

	var existing string
	if note := st.Snapshot().MasterNote; note != nil {
		existing = truncateRunes(note.Layer3, x.cfg.BonusContextChars)
	}
	vars := x.vars(rc)
	vars.Existing = existing

	var text string
	resp, err := x.call(ctx, prompt.Bonus, vars)
	if err == nil {
		text = strings.TrimSpace(resp.Text)
		if text == "" {
			err = llm.ErrEmptyResult
		}
	}
	if err != nil {
		x.reducer.Apply(operationFailed(st.ID(), rc, store.KindBonusExtension, err))
		x.logger.Warn("EXTENSION", "Bonus extension failed", map[string]interface{}{
			"session_id": st.ID(),
			"error":      err.Error(),
		})
		return err
	}

	if !x.reducer.Apply(operationSucceeded(st.ID(), rc, store.KindBonusExtension, text)).Applied {
		return ErrRunSuperseded
	}
	x.logger.Info("EXTENSION", "Bonus content appended", map[string]interface{}{
		"session_id": st.ID(),
		"chars":      len([]rune(text)),
	})
	return nil
}

// ExtendBatch asks for one more batch that avoids every question asked so
// far and returns its number. Zero questions is ErrEmptyResult and leaves
// the batch list untouched.
func (x *ExtensionEngine) ExtendBatch(ctx context.Context, st *store.ArtifactStore) (int, error) {
	rc, err := st.BeginOperation(store.KindBatchExtension)
	if err != nil {
		return 0, err
	}
	x.reducer.Notify(st)

	vars := x.vars(rc)
	vars.UsedFacts = usedFactsHint(st.QuestionTexts(), x.cfg.UsedFactsMaxChars)

	var batch entity.MCQBatch
	resp, err := x.call(ctx, prompt.Practice, vars)
	if err == nil {
		batch, err = toBatch(resp)
	}
	if err != nil {
		x.reducer.Apply(operationFailed(st.ID(), rc, store.KindBatchExtension, err))
		x.logger.Warn("EXTENSION", "Batch extension failed", map[string]interface{}{
			"session_id": st.ID(),
			"error_kind": llm.KindOf(err),
			"error":      err.Error(),
		})
		return 0, err
	}

	res := x.reducer.Apply(operationSucceeded(st.ID(), rc, store.KindBatchExtension, batch))
	if !res.Applied {
		return 0, ErrRunSuperseded
	}
	x.logger.Info("EXTENSION", "Batch appended", map[string]interface{}{
		"session_id":   st.ID(),
		"batch_number": res.BatchNumber,
		"questions":    len(batch.Questions),
	})
	return res.BatchNumber, nil
}

// Clarifier explains a selected span. It never mutates an artifact; only
// the clarification flag and, on failure, the notice change.
type Clarifier struct {
	engine
}

func NewClarifier(d Deps) *Clarifier {
	return &Clarifier{engine: newEngine(d)}
}

func (c *Clarifier) Clarify(ctx context.Context, st *store.ArtifactStore, span, passage string, lang entity.Language) (entity.Clarification, error) {
	span = strings.TrimSpace(span)
	if span == "" {
		return entity.Clarification{}, ErrEmptySpan
	}
	if !lang.Valid() {
		return entity.Clarification{}, store.ErrInvalidLanguage
	}
	rc, err := st.BeginOperation(store.KindClarification)
	if err != nil {
		return entity.Clarification{}, err
	}
	c.reducer.Notify(st)

	var out entity.Clarification
	resp, err := c.call(ctx, prompt.Clarify, prompt.Vars{
		Language: lang.Name(),
		Span:     span,
		Context:  strings.TrimSpace(passage),
	})
	if err == nil {
		out, err = toClarification(resp, span)
	}
	if err != nil {
		c.reducer.Apply(operationFailed(st.ID(), rc, store.KindClarification, err))
		return entity.Clarification{}, err
	}
	c.reducer.Apply(operationSucceeded(st.ID(), rc, store.KindClarification, out))
	return out, nil
}

// operationSucceeded and operationFailed tag an extension or clarification
// outcome with the store epoch it started in.
func operationSucceeded(sessionID string, rc store.RunContext, kind store.ArtifactKind, v interface{}) events.ArtifactEvent {
	ev := succeeded(sessionID, rc.RunID, kind, v)
	ev.Epoch = rc.Epoch
	return ev
}

func operationFailed(sessionID string, rc store.RunContext, kind store.ArtifactKind, err error) events.ArtifactEvent {
	ev := failedEvent(sessionID, rc.RunID, kind, err)
	ev.Epoch = rc.Epoch
	return ev
}
