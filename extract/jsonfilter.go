package extract

import "strings"

// filterState enumerates the StreamFilter states.
type filterState int

const (
	statePlain filterState = iota
	stateFence             // inside any ``` fenced block
	stateBraces            // inside a bare top-level JSON object
	stateString            // inside a string literal within braces
	stateEscaped           // immediately after a backslash within a string
)

// StreamFilter removes structured control JSON from a live text stream so a
// human-readable transcript never shows it. It handles two shapes: fenced
// ```json blocks and bare top-level {...} objects, both of which may arrive
// split across arbitrary chunk boundaries.
//
// Feed returns the visible portion of each chunk; Hidden returns everything
// suppressed so far; Flush returns text still held back when the stream
// ends: a buffered partial fence marker, or a brace object that never
// closed and so was ordinary prose after all.
type StreamFilter struct {
	state   filterState
	depth   int
	pending strings.Builder // partial fence marker carried across chunks
	open    strings.Builder // the brace object currently being suppressed
	hidden  strings.Builder
}

// NewStreamFilter creates a StreamFilter in the plain state.
func NewStreamFilter() *StreamFilter {
	return &StreamFilter{}
}

// Feed processes one chunk and returns its user-visible part.
func (f *StreamFilter) Feed(chunk string) string {
	var visible strings.Builder

	input := f.pending.String() + chunk
	f.pending.Reset()

	i := 0
	for i < len(input) {
		c := input[i]
		switch f.state {
		case statePlain:
			if c == '`' {
				// Possible fence start. Buffer until it can be decided.
				marker := input[i:]
				if isFencePrefix(marker) {
					f.pending.WriteString(marker)
					return visible.String()
				}
				if strings.HasPrefix(marker, "```") {
					f.state = stateFence
					f.hidden.WriteString("```")
					i += 3
					continue
				}
				visible.WriteByte(c)
				i++
				continue
			}
			if c == '{' {
				f.state = stateBraces
				f.depth = 1
				f.open.Reset()
				f.open.WriteByte(c)
				f.hidden.WriteByte(c)
				i++
				continue
			}
			visible.WriteByte(c)
			i++

		case stateFence:
			if c == '`' {
				marker := input[i:]
				if isFencePrefix(marker) {
					f.pending.WriteString(marker)
					return visible.String()
				}
				if strings.HasPrefix(marker, "```") {
					f.state = statePlain
					f.hidden.WriteString("```")
					i += 3
					continue
				}
			}
			f.hidden.WriteByte(c)
			i++

		case stateBraces:
			f.hidden.WriteByte(c)
			f.open.WriteByte(c)
			switch c {
			case '"':
				f.state = stateString
			case '{':
				f.depth++
			case '}':
				f.depth--
				if f.depth == 0 {
					f.state = statePlain
					f.open.Reset()
				}
			}
			i++

		case stateString:
			f.hidden.WriteByte(c)
			f.open.WriteByte(c)
			switch c {
			case '\\':
				f.state = stateEscaped
			case '"':
				f.state = stateBraces
			}
			i++

		case stateEscaped:
			f.hidden.WriteByte(c)
			f.open.WriteByte(c)
			f.state = stateString
			i++
		}
	}

	return visible.String()
}

// Flush returns text that was held back but turned out not to be structured
// output: a buffered partial fence marker, or a brace object the stream
// ended inside of. Call when the stream ends.
func (f *StreamFilter) Flush() string {
	out := f.pending.String()
	f.pending.Reset()
	switch f.state {
	case stateBraces, stateString, stateEscaped:
		out += f.open.String()
		f.open.Reset()
		f.state = statePlain
	}
	return out
}

// Hidden returns all text suppressed from the visible stream so far.
func (f *StreamFilter) Hidden() string {
	return f.hidden.String()
}

// isFencePrefix reports whether s is a strict prefix of a fence marker
// ("`" or "``") that needs more input to classify.
func isFencePrefix(s string) bool {
	return s == "`" || s == "``"
}
