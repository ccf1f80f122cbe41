package reasoning

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	keywordPrefix = regexp.MustCompile(`^思考过程[:：]?\s*`)
	numberedStep  = regexp.MustCompile(`\d+\.\s+[^\n]+`)
	numberPrefix  = regexp.MustCompile(`^\d+\.`)
	sentenceBreak = regexp.MustCompile(`。|\.`)
)

// Structure 将一段思考文本整理为编号步骤。
//
// Numbered lines are kept as is. Multi-line text becomes one step per line,
// numbered where missing. A single line is split into sentences on 。 or '.'.
// Anything else is returned as one step.
func Structure(text string) []string {
	text = stripKeyword(strings.TrimSpace(text))
	if text == "" {
		return nil
	}

	if found := numberedStep.FindAllString(text, -1); len(found) > 0 {
		out := make([]string, len(found))
		for i, s := range found {
			out[i] = strings.TrimSpace(s)
		}
		return out
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "</div>" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) > 1 {
		return number(lines)
	}

	if parts := sentences(text); len(parts) > 1 {
		return number(parts)
	}
	return []string{"1. " + text}
}

func number(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		if numberPrefix.MatchString(line) {
			out[i] = line
			continue
		}
		out[i] = fmt.Sprintf("%d. %s", i+1, line)
	}
	return out
}

func sentences(text string) []string {
	var out []string
	for _, s := range sentenceBreak.Split(stripKeyword(text), -1) {
		if s = strings.TrimSpace(s); s != "" && s != "</div>" {
			out = append(out, s)
		}
	}
	return out
}

func stripKeyword(text string) string {
	return keywordPrefix.ReplaceAllString(text, "")
}
