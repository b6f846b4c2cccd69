package budget

import "strings"

// truncationMarker terminates hard-truncated system context.
const truncationMarker = "\n…[context truncated]"

// section is one header-delimited chunk of the system context.
type section struct {
	header string // "# ..." line, empty for leading preamble
	body   string
}

func (s section) length() int {
	n := len(s.body)
	if s.header != "" {
		n += len(s.header) + 1 // trailing newline
	}
	return n
}

// TruncateSystemContext reduces a multi-section system text to at
// most maxChars. Sections are delimited by top-level markdown
// headers and compressed from the end to header-only, one at a time;
// if that is not enough, compressed sections are dropped entirely
// from the end. The first section is never compressed or dropped —
// it holds the role definition — so if it alone exceeds the budget
// the text is hard-truncated with a trailing marker.
//
// The function is pure and idempotent: applying it twice with the
// same budget yields the same result as applying it once.
func TruncateSystemContext(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}

	secs := splitSections(text)

	// Compress from the end to header-only, recomputing after each.
	for i := len(secs) - 1; i >= 1; i-- {
		if joinedLength(secs) <= maxChars {
			break
		}
		secs[i].body = ""
	}

	// Still over: drop compressed sections entirely from the end.
	for len(secs) > 1 && joinedLength(secs) > maxChars {
		secs = secs[:len(secs)-1]
	}

	if joinedLength(secs) <= maxChars {
		return joinSections(secs)
	}

	// The first section alone exceeds the budget.
	return hardTruncate(secs[0].header+secs[0].body, maxChars)
}

func splitSections(text string) []section {
	lines := strings.SplitAfter(text, "\n")
	var secs []section
	current := section{}
	started := false

	flush := func() {
		if started {
			secs = append(secs, current)
		}
	}

	for _, line := range lines {
		if isTopLevelHeader(line) {
			flush()
			header := strings.TrimRight(line, "\n")
			current = section{header: header}
			started = true
			continue
		}
		if !started {
			started = true
		}
		current.body += line
	}
	flush()
	return secs
}

// isTopLevelHeader matches "# Title" but not "## Subsection".
func isTopLevelHeader(line string) bool {
	return strings.HasPrefix(line, "# ")
}

func joinedLength(secs []section) int {
	n := 0
	for _, s := range secs {
		n += s.length()
	}
	return n
}

func joinSections(secs []section) string {
	var b strings.Builder
	for _, s := range secs {
		if s.header != "" {
			b.WriteString(s.header)
			b.WriteString("\n")
		}
		b.WriteString(s.body)
	}
	return b.String()
}

// hardTruncate cuts at a rune boundary and appends the marker,
// keeping the total within maxChars.
func hardTruncate(text string, maxChars int) string {
	budget := maxChars - len(truncationMarker)
	if budget < 0 {
		budget = 0
	}
	cut := budget
	for cut > 0 && !isRuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + truncationMarker
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
