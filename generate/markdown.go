package generate

import (
	"regexp"
	"strings"
)

var (
	headerRe  = regexp.MustCompile(`^(#{1,6})\s*(\S.*)$`)
	bulletRe  = regexp.MustCompile(`^(\s*)([-*+])([^\s*+-].*)$`)
	orderedRe = regexp.MustCompile(`^(\s*)(\d+)\.(\S.*)$`)
	ruleRe    = regexp.MustCompile(`^\s*[-*_]{3,}\s*$`)
)

// NormalizeMarkdown cleans up the markdown the model tends to emit:
// header and list markers get a space, table pipes get padded, runs of
// blank lines collapse to at most two. Pure and idempotent.
func NormalizeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blanks := 0

	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			blanks++
			if blanks <= 2 {
				out = append(out, "")
			}
			continue
		}
		blanks = 0
		out = append(out, normalizeLine(line))
	}
	return strings.Join(out, "\n")
}

func normalizeLine(line string) string {
	if ruleRe.MatchString(line) {
		return line
	}
	if m := headerRe.FindStringSubmatch(line); m != nil {
		return m[1] + " " + m[2]
	}
	if trimmed := strings.TrimSpace(line); strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|") && strings.Count(trimmed, "|") >= 2 {
		return normalizeTableRow(trimmed)
	}
	if m := bulletRe.FindStringSubmatch(line); m != nil {
		return m[1] + m[2] + " " + m[3]
	}
	if m := orderedRe.FindStringSubmatch(line); m != nil {
		return m[1] + m[2] + ". " + m[3]
	}
	return line
}

func normalizeTableRow(row string) string {
	parts := strings.Split(row, "|")
	cells := parts[1 : len(parts)-1]
	for i, c := range cells {
		cells[i] = strings.TrimSpace(c)
	}
	return "| " + strings.Join(cells, " | ") + " |"
}
