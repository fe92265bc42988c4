// Package ui holds the terminal output helpers of the studykit CLI.
package ui

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

// Init disables colors when asked to or when stdout is not a terminal.
func Init(noColor bool) {
	if noColor {
		color.NoColor = true
	}
}

type Spinner struct {
	spinner *spinner.Spinner
}

func NewSpinner(message string) *Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = os.Stderr
	return &Spinner{spinner: s}
}

func (s *Spinner) Start() {
	s.spinner.Start()
}

func (s *Spinner) Stop() {
	s.spinner.Stop()
}

func (s *Spinner) UpdateMessage(message string) {
	s.spinner.Lock()
	s.spinner.Suffix = " " + message
	s.spinner.Unlock()
}

type ProgressBar struct {
	bar *progressbar.ProgressBar
}

func NewProgressBar(total int, description string) *ProgressBar {
	bar := progressbar.NewOptions(
		total,
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &ProgressBar{bar: bar}
}

func (p *ProgressBar) Add(n int) {
	_ = p.bar.Add(n)
}

func (p *ProgressBar) Finish() {
	_ = p.bar.Finish()
}

func Success(format string, args ...interface{}) {
	color.Green("✓ "+format, args...)
}

func Failure(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

func Warning(format string, args ...interface{}) {
	color.Yellow("⚠ "+format, args...)
}

func Info(format string, args ...interface{}) {
	color.Cyan(format, args...)
}

// Section prints a bold heading followed by an underline.
func Section(title string) {
	color.New(color.Bold).Printf("\n%s\n", title)
	fmt.Println(underline(len([]rune(title))))
}

func underline(n int) string {
	b := make([]rune, n)
	for i := range b {
		b[i] = '='
	}
	return string(b)
}
