package commands

import (
	"fmt"
	"strings"

	"studykit-be/pkg/store"
)

type reportLine struct {
	OK   bool
	Text string
}

// artifactReport describes each derived artifact of a settled run.
func artifactReport(snap store.Session) []reportLine {
	var lines []reportLine

	if snap.MasterNote != nil {
		lines = append(lines, reportLine{true, "Master note"})
	} else {
		lines = append(lines, reportLine{false, "Master note unavailable"})
	}

	if snap.Summary != nil {
		lines = append(lines, reportLine{true, fmt.Sprintf("Summary (%d words)", len(strings.Fields(*snap.Summary)))})
	} else {
		lines = append(lines, reportLine{false, "Summary unavailable"})
	}

	if len(snap.Batches) > 0 {
		n := 0
		for _, b := range snap.Batches {
			n += len(b.Questions)
		}
		lines = append(lines, reportLine{true, fmt.Sprintf("Practice exam: %d question(s) in %d batch(es)", n, len(snap.Batches))})
	} else {
		lines = append(lines, reportLine{false, "Practice exam unavailable"})
	}

	if len(snap.Flashcards) > 0 {
		lines = append(lines, reportLine{true, fmt.Sprintf("Flashcards: %d", len(snap.Flashcards))})
	} else {
		lines = append(lines, reportLine{false, "Flashcards unavailable"})
	}
	return lines
}

// pendingMessage names what the run is still waiting for.
func pendingMessage(f store.LoadingFlags) string {
	if f.Extraction {
		return "Reading pages..."
	}
	var pending []string
	for _, k := range store.Derivations {
		if f.Get(k) {
			pending = append(pending, string(k))
		}
	}
	if len(pending) == 0 {
		return "Done"
	}
	return "Generating " + strings.Join(pending, ", ") + "..."
}
