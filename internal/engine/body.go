package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/kirosync/kirosync/internal/parser"
)

// buildIssueBody renders the issue body: the task description followed by a
// provenance block so a reader can trace the issue back to its source line.
func (e *Engine) buildIssueBody(task parser.Task) string {
	var b strings.Builder

	if task.Description != "" {
		b.WriteString(task.Description)
		b.WriteString("\n\n")
	}

	b.WriteString("---\n")
	fmt.Fprintf(&b, "**Task ID:** `%s`\n", task.ID)
	fmt.Fprintf(&b, "**Spec:** %s\n", task.SpecName)
	fmt.Fprintf(&b, "**Status:** %s\n", task.Status)
	fmt.Fprintf(&b, "**Source:** `%s:%d`\n", task.FilePath, task.LineNumber)
	if len(task.Requirements) > 0 {
		fmt.Fprintf(&b, "**Requirements:** %s\n", strings.Join(task.Requirements, ", "))
	}
	fmt.Fprintf(&b, "\n_Synced by kirosync at %s_\n", e.now().UTC().Format(time.RFC3339))

	return b.String()
}
