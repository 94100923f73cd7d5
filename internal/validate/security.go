package validate

import (
	"regexp"
	"strings"
)

// dangerPatterns flag shell constructs that should never ship in shared
// memory fragments. Matches are warnings: the user decides.
var dangerPatterns = []struct {
	re     *regexp.Regexp
	reason string
}{
	{regexp.MustCompile(`\brm\s+(-[a-zA-Z]*[rf][a-zA-Z]*\s+)+`), "recursive or forced file removal"},
	{regexp.MustCompile(`\bcurl\b[^|\n]*\|\s*(ba|z|da)?sh\b`), "piping a download into a shell"},
	{regexp.MustCompile(`\bwget\b[^|\n]*\|\s*(ba|z|da)?sh\b`), "piping a download into a shell"},
	{regexp.MustCompile(`(>>?|\btee\s+)\s*/(etc|usr|bin|sbin|boot|sys)/`), "writing to a system directory"},
	{regexp.MustCompile(`\bchmod\s+(-[a-zA-Z]+\s+)*777\b`), "world-writable permissions"},
	{regexp.MustCompile(`\bsudo\s+rm\b`), "privileged file removal"},
}

// scanFragmentBody reports dangerous shell patterns found inside fenced
// code blocks of a fragment body. startLine is the 1-based line of the
// body's first line within the original file.
func scanFragmentBody(res *Result, body string, startLine int) {
	lines := strings.Split(body, "\n")
	inFence := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if !inFence {
			continue
		}
		for _, p := range dangerPatterns {
			if p.re.MatchString(line) {
				d := res.AddWarning(CodeDangerousCode, p.reason)
				d.Line = startLine + i
				d.Suggestion = "Review this command before installing the fragment"
				break
			}
		}
	}
}
