package llm

import "strings"

const (
	thinkOpenTag  = "<think>"
	thinkCloseTag = "</think>"
)

// thinkParser separates an inline <think>…</think> reasoning block
// from the text a model streams around it. Raw deltas are buffered
// until the block resolves: once both tags are present the reasoning
// is emitted as a closed start/delta/end triple; a text part open at
// that point is closed first and text after the block resumes under a
// new id. A partial tag at the buffer tail is held across chunks;
// text that cannot begin a tag streams immediately. After one block
// has resolved the parser passes everything through verbatim.
type thinkParser struct {
	newID    func() string
	pending  string
	textID   string
	textOpen bool
	resolved bool
}

func newThinkParser(newID func() string) *thinkParser {
	return &thinkParser{newID: newID}
}

// Feed consumes one raw delta and returns the events it releases.
func (p *thinkParser) Feed(chunk string) []Event {
	if chunk == "" {
		return nil
	}
	if p.resolved && p.pending == "" {
		return p.emitText(chunk)
	}
	p.pending += chunk

	if i := strings.Index(p.pending, thinkOpenTag); i >= 0 && !p.resolved {
		body := p.pending[i+len(thinkOpenTag):]
		j := strings.Index(body, thinkCloseTag)
		if j < 0 {
			// Opening tag seen, closing tag pending: withhold everything.
			return nil
		}
		reasoning := body[:j]
		rest := p.pending[:i] + body[j+len(thinkCloseTag):]
		p.pending = ""
		p.resolved = true

		var out []Event
		if reasoning != "" {
			// A text part already streaming is closed first; text after
			// the block resumes under a fresh id.
			if p.textOpen {
				out = append(out, Event{Type: EventTextEnd, ID: p.textID})
				p.textOpen = false
			}
			id := p.newID()
			out = append(out,
				Event{Type: EventReasoningStart, ID: id},
				Event{Type: EventReasoningDelta, ID: id, Delta: reasoning},
				Event{Type: EventReasoningEnd, ID: id},
			)
		}
		return append(out, p.emitText(rest)...)
	}

	hold := partialTagSuffix(p.pending)
	flush := p.pending[:len(p.pending)-hold]
	p.pending = p.pending[len(p.pending)-hold:]
	return p.emitText(flush)
}

// End flushes whatever is still held (an unclosed block degrades to
// literal text) and closes the open text part.
func (p *thinkParser) End() []Event {
	out := p.emitText(p.pending)
	p.pending = ""
	if p.textOpen {
		out = append(out, Event{Type: EventTextEnd, ID: p.textID})
		p.textOpen = false
	}
	return out
}

// TextEmitted reports whether any text part was opened.
func (p *thinkParser) TextEmitted() bool {
	return p.textID != ""
}

func (p *thinkParser) emitText(text string) []Event {
	if text == "" {
		return nil
	}
	var out []Event
	if !p.textOpen {
		p.textID = p.newID()
		p.textOpen = true
		out = append(out, Event{Type: EventTextStart, ID: p.textID})
	}
	return append(out, Event{Type: EventTextDelta, ID: p.textID, Delta: text})
}

// partialTagSuffix returns the length of the longest suffix of s that
// is a proper prefix of "<think>", i.e. text that could still grow
// into an opening tag.
func partialTagSuffix(s string) int {
	max := len(thinkOpenTag) - 1
	if len(s) < max {
		max = len(s)
	}
	for k := max; k > 0; k-- {
		if strings.HasSuffix(s, thinkOpenTag[:k]) {
			return k
		}
	}
	return 0
}
