package ui

import (
	"fmt"
	"strings"

	"github.com/desertthunder/harmonymaker/internal/tasks"
)

var _ Painter = (*Palette)(nil)

// Status renders a ✓ line, or a ✗ line when err is non-nil.
func (p *Palette) Status(msg string, err error) string {
	if err != nil {
		return p.Err(fmt.Sprintf("✗ %s: %v", msg, err))
	}
	return p.OK("✓ " + msg)
}

// Progress renders one pipeline update.
func (p *Palette) Progress(update tasks.ProgressUpdate) string {
	counter := ""
	if update.Total > 0 {
		counter = fmt.Sprintf("[%d/%d] ", update.Step, update.Total)
	}

	line := fmt.Sprintf("%s%-18s %s", counter, update.Phase, update.Message)
	switch update.Phase {
	case tasks.Cleanup:
		return p.Warn(line)
	case tasks.Done:
		return p.OK(line)
	default:
		return line
	}
}

// Result renders the summary of a harmonized pair.
func (p *Palette) Result(result *tasks.Result) string {
	if result == nil {
		return p.Err("No result available")
	}

	var b strings.Builder
	b.WriteString(p.Title("✓ Harmonized"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Original:    %s (%s)\n", result.OriginalURL, result.OriginalID)
	fmt.Fprintf(&b, "Transformed: %s", result.TransformedURL)
	if result.TransformedID != "" {
		fmt.Fprintf(&b, " (%s)", result.TransformedID)
	}
	return b.String()
}
