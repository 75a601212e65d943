package executor

import (
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// errorLinePrefix starts every error line TeX engines print.
const errorLinePrefix = "! "

// decodeOutput turns raw tool output into text, swapping bytes that are not
// valid UTF-8 for U+FFFD.
func decodeOutput(out []byte) string {
	text, _, err := transform.Bytes(runes.ReplaceIllFormed(), out)
	if err != nil {
		return strings.ToValidUTF8(string(out), "�")
	}
	return string(text)
}

func splitLines(text string) []string {
	text = strings.TrimRight(text, "\r\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// extractDiagnostics returns up to maxErrors error lines from the output
// (all of them when maxErrors is 0).
// When there are none it falls back to the last tailLines lines and reports
// tail as true.
func extractDiagnostics(text string, maxErrors, tailLines int) (lines []string, tail bool) {
	all := splitLines(text)

	for _, line := range all {
		if strings.HasPrefix(line, errorLinePrefix) {
			lines = append(lines, line)
			if len(lines) == maxErrors {
				break
			}
		}
	}
	if len(lines) > 0 {
		return lines, false
	}

	if tailLines < len(all) {
		all = all[len(all)-tailLines:]
	}
	return all, true
}
