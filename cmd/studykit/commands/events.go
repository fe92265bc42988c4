package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"

	"studykit-be/cmd/studykit/ui"
	"studykit-be/internal/config"
	"studykit-be/pkg/events"
	pktNats "studykit-be/pkg/nats"

	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	var natsURL string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail run lifecycle events published by the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := firstNonEmpty(natsURL, config.Load().App.NatsURL)
			if url == "" {
				return fmt.Errorf("no NATS url: pass --nats-url or set NATS_URL")
			}
			return tailEvents(cmd.Context(), url)
		},
	}
	cmd.Flags().StringVar(&natsURL, "nats-url", "", "NATS server url")
	return cmd
}

func tailEvents(ctx context.Context, url string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	sub, err := pktNats.NewSubscriber(url)
	if err != nil {
		return err
	}
	defer sub.Close()

	err = sub.Subscribe(ctx, pktNats.SubjectPrefix+".>", "", func(_ context.Context, ev events.Event) error {
		line := formatEvent(ev)
		switch ev.EventType() {
		case events.RunFailed:
			ui.Failure("%s", line)
		case events.RunSettled:
			ui.Success("%s", line)
		default:
			ui.Info("%s", line)
		}
		return nil
	})
	if err != nil {
		return err
	}

	ui.Info("Listening on %s (Ctrl+C to stop)", url)
	<-ctx.Done()
	return nil
}

func formatEvent(ev events.Event) string {
	data := ev.Payload()
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return fmt.Sprintf("%s %s %s", ev.Timestamp().Format("15:04:05"), ev.EventType(), strings.Join(parts, " "))
}
