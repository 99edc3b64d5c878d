package document

import (
	"strings"
)

// Batch is one separately executed piece of a document.
type Batch struct {
	Index int
	// StartLine is the zero-based line of the document the batch begins on.
	StartLine int
	SQL       string
}

// SplitBatches splits text on lines consisting solely of the GO separator
// (case-insensitive, surrounding whitespace ignored). Batches with no
// statement text are dropped; the remaining batches are numbered from zero.
func SplitBatches(text string) []Batch {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var batches []Batch
	var current []string
	start := 0

	flush := func(next int) {
		sql := strings.TrimSpace(strings.Join(current, "\n"))
		if sql != "" {
			batches = append(batches, Batch{Index: len(batches), StartLine: start, SQL: sql})
		}
		current = current[:0]
		start = next
	}

	for i, line := range lines {
		if strings.EqualFold(strings.TrimSpace(line), "go") {
			flush(i + 1)
			continue
		}
		current = append(current, line)
	}
	flush(len(lines))
	return batches
}
