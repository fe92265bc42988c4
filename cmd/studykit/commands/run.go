package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"studykit-be/cmd/studykit/ui"
	"studykit-be/internal/config"
	"studykit-be/internal/entity"
	"studykit-be/internal/tracer"
	"studykit-be/pkg/ai/pipeline"
	"studykit-be/pkg/llm"
	"studykit-be/pkg/llm/factory"
	"studykit-be/pkg/store"

	"github.com/spf13/cobra"
)

type runOptions struct {
	language      string
	provider      string
	model         string
	extendBatches int
	bonus         bool
	out           string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <image>...",
		Short: "Generate a study kit from page photographs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKit(cmd.Context(), opts, args)
		},
	}
	cmd.Flags().StringVarP(&opts.language, "lang", "l", "en", "output language: en or bn")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "generation backend (gemini, ollama, huggingface); defaults to LLM_PROVIDER")
	cmd.Flags().StringVar(&opts.model, "model", "", "model name; defaults to LLM_MODEL")
	cmd.Flags().IntVar(&opts.extendBatches, "extend-batches", 0, "generate this many extra practice batches")
	cmd.Flags().BoolVar(&opts.bonus, "bonus", false, "append bonus material to the note")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write the exported kit as JSON to this file")
	return cmd
}

func runKit(ctx context.Context, opts *runOptions, paths []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	lang := entity.Language(strings.ToUpper(opts.language))
	if !lang.Valid() {
		return store.ErrInvalidLanguage
	}

	cfg := config.Load()
	log := cliLogger()
	defer log.Sync()

	shutdownTracer, err := tracer.Init(cfg.Otel, "studykit-cli", cfg.App.Environment, log)
	if err != nil {
		ui.Warning("tracing disabled: %v", err)
	}
	defer shutdownTracer(context.Background())

	provider := firstNonEmpty(opts.provider, cfg.Ai.LLMProvider)
	gateway, err := factory.NewGateway(ctx, factory.Settings{
		Provider: provider,
		Model:    firstNonEmpty(opts.model, cfg.Ai.LLMModel),
		BaseURL:  cfg.BaseURLFor(provider),
		APIKey:   cfg.APIKeyFor(provider),
		Timeout:  cfg.Ai.RequestTimeout,
	})
	if err != nil {
		return err
	}
	defer closeGateway(gateway)

	st := store.NewArtifactStore("cli", cfg.Kit.MaxImages)
	images, err := readImages(paths)
	if err != nil {
		return err
	}
	res, err := st.AddImages(images...)
	if err != nil {
		return err
	}
	if res.Dropped > 0 {
		ui.Warning("%d image(s) skipped (limit %d, %d duplicate)", res.Dropped, cfg.Kit.MaxImages, res.Duplicates)
	}

	spin := ui.NewSpinner("Reading pages...")
	reducer := pipeline.NewReducer(func(id string) (*store.ArtifactStore, bool) {
		return st, id == st.ID()
	}, nil, log)
	reducer.Subscribe(func(_ string, snap store.Session) {
		spin.UpdateMessage(pendingMessage(snap.Loading))
	})

	// Without a bus completions are applied as they finish, so Wait
	// returns with every artifact settled.
	deps := pipeline.Deps{
		Gateway: gateway,
		Reducer: reducer,
		Logger:  log,
		Config: pipeline.Config{
			QuestionsPerBatch: cfg.Kit.QuestionsPerBatch,
			FlashcardCount:    cfg.Kit.FlashcardCount,
			BonusContextChars: cfg.Kit.BonusContextChars,
			UsedFactsMaxChars: cfg.Kit.UsedFactsMaxChars,
		},
	}
	orch := pipeline.NewOrchestrator(deps)

	spin.Start()
	_, err = orch.StartRun(ctx, st, lang)
	if err != nil {
		spin.Stop()
		ui.Failure("%s", llm.UserMessage(err))
		return err
	}
	orch.Wait()
	spin.Stop()

	snap := st.Snapshot()
	ui.Section(fmt.Sprintf("Study kit (%s, %s)", snap.Extraction.Subject, lang.Name()))
	for _, line := range artifactReport(snap) {
		if line.OK {
			ui.Success("%s", line.Text)
		} else {
			ui.Failure("%s", line.Text)
		}
	}

	ext := pipeline.NewExtensionEngine(deps)
	if opts.bonus {
		if err := ext.ExtendBonus(ctx, st); err != nil {
			ui.Warning("Bonus: %s", llm.UserMessage(err))
		} else {
			ui.Success("Bonus material appended")
		}
	}
	if opts.extendBatches > 0 {
		extendBatches(ctx, ext, st, opts.extendBatches)
	}

	if opts.out != "" {
		if err := writeExport(st, opts.out); err != nil {
			return err
		}
		ui.Info("Kit written to %s", opts.out)
	}
	return nil
}

func extendBatches(ctx context.Context, ext *pipeline.ExtensionEngine, st *store.ArtifactStore, n int) {
	bar := ui.NewProgressBar(n, "Extra batches")
	defer bar.Finish()
	for i := 0; i < n; i++ {
		_, err := ext.ExtendBatch(ctx, st)
		if errors.Is(err, llm.ErrEmptyResult) {
			ui.Warning("%s", llm.UserMessage(err))
			return
		}
		if err != nil {
			ui.Failure("Batch extension: %s", llm.UserMessage(err))
			return
		}
		bar.Add(1)
	}
}

func readImages(paths []string) ([]entity.ImagePayload, error) {
	images := make([]entity.ImagePayload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		img, err := store.NewImagePayload(data, "")
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(img.MIMEType, "image/") {
			return nil, fmt.Errorf("%s: not an image (%s)", p, img.MIMEType)
		}
		images = append(images, img)
	}
	return images, nil
}

func writeExport(st *store.ArtifactStore, path string) error {
	kit, err := st.Export()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(kit, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// closeGateway releases the backend client when the gateway holds one.
func closeGateway(gw llm.Gateway) {
	if c, ok := gw.(io.Closer); ok {
		if err := c.Close(); err != nil {
			ui.Warning("closing %s gateway: %v", gw.Name(), err)
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
