package parser

import (
	"fmt"
	"regexp"
	"strings"
)

// checkboxish matches lines that start like a checkbox task but may be broken
// (e.g. an unclosed bracket).
var checkboxish = regexp.MustCompile(`^\s*-\s+\[`)

// Validate reports quality problems in markdown content without failing:
// duplicate task ids, empty titles, and lines that look like checkbox syntax
// but do not parse. Callers can log the problems and keep syncing.
func Validate(content, filePath string) []string {
	var problems []string

	firstLine := make(map[string]int)
	for i, line := range strings.Split(content, "\n") {
		lineNo := i + 1

		m := taskLinePattern.FindStringSubmatch(line)
		if m == nil {
			if checkboxish.MatchString(line) {
				problems = append(problems, fmt.Sprintf("%s:%d: malformed checkbox syntax", filePath, lineNo))
			}
			continue
		}

		id, title := extractIDAndTitle(strings.TrimSpace(m[2]))
		if title == "" {
			problems = append(problems, fmt.Sprintf("%s:%d: task has empty title", filePath, lineNo))
			continue
		}
		if prev, ok := firstLine[id]; ok {
			problems = append(problems, fmt.Sprintf("%s:%d: duplicate task id %q (first seen at line %d)", filePath, lineNo, id, prev))
			continue
		}
		firstLine[id] = lineNo
	}

	return problems
}
