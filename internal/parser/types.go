// Package parser extracts task records from markdown spec files.
//
// A task is a checkbox line of the form "- [ ] 1.2 Title" plus its indented
// continuation lines. The parser is a pure function of its input: parsing the
// same content twice yields structurally equal output.
package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Status is the tri-state progress of a task, derived from its checkbox glyph.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Task is one checkbox item extracted from a spec file.
type Task struct {
	ID           string   // dotted numeric id ("1.2") or content-hash fallback
	Title        string   // non-empty
	Status       Status
	Description  string   // optional multi-line free text
	Requirements []string // optional ordered requirement tags

	// Provenance.
	FilePath   string
	LineNumber int // 1-based line of the checkbox
	SpecName   string
}

// Hash returns the content fingerprint of the task. It covers title,
// description, status, and requirements; two tasks with the same hash are
// content-equivalent regardless of where they live.
func (t *Task) Hash() string {
	h := sha256.New()
	h.Write([]byte(t.Title))
	h.Write([]byte{0})
	h.Write([]byte(t.Description))
	h.Write([]byte{0})
	h.Write([]byte(t.Status))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(t.Requirements, ",")))
	return hex.EncodeToString(h.Sum(nil))
}

// FallbackID derives a deterministic id from a title, for task lines that
// carry no numeric identifier.
func FallbackID(title string) string {
	sum := sha256.Sum256([]byte(title))
	return hex.EncodeToString(sum[:])[:8]
}
