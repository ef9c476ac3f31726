package parser

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// taskLinePattern matches a checkbox task line and captures the bracketed
	// marker and the remainder of the line.
	taskLinePattern = regexp.MustCompile(`^\s*-\s+(\[[^\]]*\])\s*(.*)$`)

	// completedMarker matches [x] or [X] with arbitrary internal whitespace.
	completedMarker = regexp.MustCompile(`^\[\s*[xX]\s*\]$`)

	// idTitlePattern: dotted numeric id followed by a title.
	idTitlePattern = regexp.MustCompile(`^(\d+(?:\.\d+)*)\s+(.+)$`)

	// idDotTitlePattern: dotted numeric id with a trailing period.
	idDotTitlePattern = regexp.MustCompile(`^(\d+(?:\.\d+)*)\.\s+(.+)$`)

	headerPattern         = regexp.MustCompile(`^#{1,6}\s`)
	horizontalRulePattern = regexp.MustCompile(`^\s*(-{3,}|\*{3,}|_{3,})\s*$`)
	requirementsPattern   = regexp.MustCompile(`^\s*_?Requirements:\s*(.+?)_?\s*$`)
)

// statusFromMarker maps a bracketed checkbox glyph to a Status.
//
// Precedence is completed → in_progress → not_started and must stay that way:
// hand-edited docs are full of malformed checkboxes, and an exact completed
// glyph always wins. Only a bare [-] counts as in-progress; "[ - ]" does not.
func statusFromMarker(marker string) Status {
	if completedMarker.MatchString(marker) {
		return StatusCompleted
	}
	if marker == "[-]" {
		return StatusInProgress
	}
	return StatusNotStarted
}

// extractIDAndTitle splits a task line remainder into id and title.
// It tries, in order: dotted id + title, dotted id with trailing period +
// title, and finally no id at all (the whole remainder is the title and the
// id is synthesized from a content hash). First match wins.
func extractIDAndTitle(remainder string) (id, title string) {
	if m := idTitlePattern.FindStringSubmatch(remainder); m != nil {
		return m[1], strings.TrimSpace(m[2])
	}
	if m := idDotTitlePattern.FindStringSubmatch(remainder); m != nil {
		return m[1], strings.TrimSpace(m[2])
	}
	title = strings.TrimSpace(remainder)
	return FallbackID(title), title
}

// SpecNameFromPath derives the spec name from a file path: the path segment
// following a "specs" directory, or the parent directory name as fallback.
func SpecNameFromPath(path string) string {
	segments := strings.Split(filepath.ToSlash(path), "/")
	for i, seg := range segments {
		if seg == "specs" && i+1 < len(segments)-1 {
			return segments[i+1]
		}
	}
	return filepath.Base(filepath.Dir(path))
}

// Parse scans markdown content and returns the tasks it contains, in file
// order. Lines that look broken are skipped rather than fatal; use Validate
// to surface quality problems.
func Parse(content, filePath string) []Task {
	specName := SpecNameFromPath(filePath)

	var (
		tasks     []Task
		current   *Task
		descLines []string
	)

	finalize := func() {
		if current == nil {
			return
		}
		current.Description = strings.TrimSpace(strings.Join(descLines, "\n"))
		tasks = append(tasks, *current)
		current = nil
		descLines = nil
	}

	for i, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if m := taskLinePattern.FindStringSubmatch(line); m != nil {
			finalize()
			id, title := extractIDAndTitle(strings.TrimSpace(m[2]))
			if title == "" {
				// Checkbox with no title. Validate reports it.
				continue
			}
			current = &Task{
				ID:         id,
				Title:      title,
				Status:     statusFromMarker(m[1]),
				FilePath:   filePath,
				LineNumber: i + 1,
				SpecName:   specName,
			}
			continue
		}

		if headerPattern.MatchString(line) || horizontalRulePattern.MatchString(line) {
			finalize()
			continue
		}

		if current == nil || trimmed == "" {
			continue
		}

		if m := requirementsPattern.FindStringSubmatch(line); m != nil {
			current.Requirements = splitRequirements(m[1])
			continue
		}

		// Description content: indented or bulleted continuation lines.
		// Anything else between tasks is prose we don't care about.
		indented := strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
		bulleted := strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "*")
		if indented || bulleted {
			descLines = append(descLines, trimmed)
		}
	}
	finalize()

	return tasks
}

func splitRequirements(list string) []string {
	var reqs []string
	for _, part := range strings.Split(list, ",") {
		if part = strings.TrimSpace(part); part != "" {
			reqs = append(reqs, part)
		}
	}
	return reqs
}
