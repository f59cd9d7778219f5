// Package output provides output formatting utilities for the planning CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/colthorp/planning-cli-go/internal/core"
	"github.com/colthorp/planning-cli-go/internal/model"
)

// PrintResult writes a human-readable summary of an acquired artifact.
func PrintResult(w io.Writer, a model.Artifact) {
	source := "captured"
	if a.FromCache {
		source = "cached"
	}
	fmt.Fprintf(w, "Planning for %s\n", a.Key)
	fmt.Fprintf(w, "  %s:  %s\n", source, core.FormatCaptureTime(a.CapturedAt))
	fmt.Fprintf(w, "  location: %s\n", a.Location)
}

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Caption is the text shown next to a planning image.
func Caption(a model.Artifact) string {
	return fmt.Sprintf("Planning for %s (captured %s)", a.Key, core.FormatCaptureTime(a.CapturedAt))
}

// PrintError writes err the way every front end reports failures: prefixed and
// cut to core.MaxMessageLen runes.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, TruncateMessage("Error: "+err.Error(), core.MaxMessageLen))
}

// TruncateMessage shortens msg to at most max runes, marking the cut with an
// ellipsis.
func TruncateMessage(msg string, max int) string {
	if max <= 0 || utf8.RuneCountInString(msg) <= max {
		return msg
	}
	const ellipsis = "…"
	runes := []rune(msg)
	if max == 1 {
		return ellipsis
	}
	return string(runes[:max-1]) + ellipsis
}
