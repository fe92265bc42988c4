package commands

import (
	"studykit-be/cmd/studykit/ui"
	"studykit-be/internal/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
)

var (
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "studykit",
	Short: "Turn photographed textbook pages into a study kit",
	Long: `studykit reads up to five page photographs, extracts their text and
generates a layered note, a summary, a practice exam and flashcards in
Bangla or English.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.Init(noColor)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline stages to stderr")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newEventsCmd())
}

func Execute() error {
	return rootCmd.Execute()
}

func cliLogger() logger.ILogger {
	if verbose {
		return logger.NewConsoleLogger(zapcore.DebugLevel)
	}
	return logger.NewConsoleLogger(zapcore.ErrorLevel)
}
