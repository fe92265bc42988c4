package pipeline

import (
	"context"

	"studykit-be/internal/pkg/logger"
	"studykit-be/pkg/llm"
	"studykit-be/pkg/prompt"
	"studykit-be/pkg/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Config struct {
	QuestionsPerBatch int
	FlashcardCount    int
	BonusContextChars int
	UsedFactsMaxChars int
}

func DefaultConfig() Config {
	return Config{
		QuestionsPerBatch: 10,
		FlashcardCount:    10,
		BonusContextChars: 4000,
		UsedFactsMaxChars: 6000,
	}
}

// Deps wires the pipeline components. Bus and Runs are optional: without a
// bus, completions go straight to the reducer.
type Deps struct {
	Gateway llm.Gateway
	Prompts *prompt.Catalog
	Reducer *Reducer
	Bus     Bus
	Runs    RunPublisher
	Logger  logger.ILogger
	Config  Config
}

// engine holds what every stage needs to issue a traced gateway call and
// feed its outcome to the reducer.
type engine struct {
	gateway llm.Gateway
	prompts *prompt.Catalog
	reducer *Reducer
	logger  logger.ILogger
	cfg     Config
	tracer  trace.Tracer
}

func newEngine(d Deps) engine {
	if d.Logger == nil {
		d.Logger = logger.NopLogger{}
	}
	if d.Prompts == nil {
		d.Prompts = prompt.MustDefault()
	}
	if d.Config == (Config{}) {
		d.Config = DefaultConfig()
	}
	return engine{
		gateway: d.Gateway,
		prompts: d.Prompts,
		reducer: d.Reducer,
		logger:  d.Logger,
		cfg:     d.Config,
		tracer:  otel.Tracer("studykit/pipeline"),
	}
}

func (e *engine) vars(rc store.RunContext) prompt.Vars {
	return prompt.Vars{
		Subject:        string(rc.Extraction.Subject),
		Language:       rc.Language.Name(),
		Text:           rc.Extraction.Text,
		QuestionCount:  e.cfg.QuestionsPerBatch,
		FlashcardCount: e.cfg.FlashcardCount,
	}
}

// call renders the named prompt and invokes the gateway under a span.
func (e *engine) call(ctx context.Context, name string, vars prompt.Vars, images ...llm.Image) (*llm.Response, error) {
	req, err := e.prompts.Request(name, vars, images...)
	if err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "gateway."+name, trace.WithAttributes(
		attribute.String("llm.backend", e.gateway.Name()),
		attribute.String("llm.task_kind", req.Kind.String()),
		attribute.Int("llm.images", len(req.Images)),
	))
	defer span.End()

	resp, err := e.gateway.Invoke(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(llm.KindOf(err)))
		return nil, err
	}
	return resp, nil
}
