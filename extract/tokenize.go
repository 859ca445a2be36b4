package extract

import (
	"encoding/json"
	"strings"
)

// SegmentKind discriminates between segment types.
type SegmentKind string

const (
	SegmentPlainText   SegmentKind = "plain_text"
	SegmentCodeBlock   SegmentKind = "code_block"
	SegmentCommandCall SegmentKind = "command_call"
)

// CodeBlock is an inline code block extracted from model output.
type CodeBlock struct {
	Lang   string `json:"lang,omitempty"`
	Source string `json:"source"`
}

// CommandCall is a structured command invocation extracted from model output.
type CommandCall struct {
	Cmd    string                 `json:"cmd"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// Segment is one piece of a tokenized model turn. Exactly one of Text,
// Code, or Command is meaningful, selected by Kind. A command segment with a
// nil Command carries a payload that failed to parse; Raw holds it so the
// caller can report the failure back to the model.
type Segment struct {
	Kind    SegmentKind  `json:"kind"`
	Text    string       `json:"text,omitempty"`
	Code    *CodeBlock   `json:"code,omitempty"`
	Command *CommandCall `json:"command,omitempty"`
	Raw     string       `json:"raw,omitempty"`
}

const (
	codeOpenPrefix = "<execute"
	codeClose      = "</execute>"
	cmdOpen        = "<command>"
	cmdClose       = "</command>"
)

// Tokenize splits model output into plain text, code blocks, and command
// calls. Unterminated tags are left in place as plain text. An explicit
// scanner, not a regex, so the grammar stays testable in isolation.
func Tokenize(s string) []Segment {
	var segments []Segment
	rest := s

	for rest != "" {
		codeIdx := indexCodeOpen(rest)
		cmdIdx := strings.Index(rest, cmdOpen)

		// Pick whichever tag opens first.
		idx, isCode := codeIdx, true
		if idx == -1 || (cmdIdx != -1 && cmdIdx < idx) {
			idx, isCode = cmdIdx, false
		}
		if idx == -1 {
			segments = appendText(segments, rest)
			break
		}

		var seg Segment
		var consumed int
		var ok bool
		if isCode {
			seg, consumed, ok = scanCodeBlock(rest[idx:])
		} else {
			seg, consumed, ok = scanCommand(rest[idx:])
		}
		if !ok {
			// Unterminated tag: everything from the tag onward is text.
			segments = appendText(segments, rest)
			break
		}

		segments = appendText(segments, rest[:idx])
		segments = append(segments, seg)
		rest = rest[idx+consumed:]
	}

	return segments
}

// indexCodeOpen finds the first <execute> or <execute ...> open tag,
// rejecting longer names that merely share the prefix.
func indexCodeOpen(s string) int {
	from := 0
	for {
		idx := strings.Index(s[from:], codeOpenPrefix)
		if idx == -1 {
			return -1
		}
		abs := from + idx
		after := abs + len(codeOpenPrefix)
		if after < len(s) && (s[after] == '>' || s[after] == ' ' || s[after] == '\t') {
			return abs
		}
		from = after
	}
}

// appendText adds a plain text segment unless the text is blank.
func appendText(segments []Segment, text string) []Segment {
	if strings.TrimSpace(text) == "" {
		return segments
	}
	return append(segments, Segment{Kind: SegmentPlainText, Text: text})
}

// scanCodeBlock parses an <execute ...>...</execute> span starting at the
// beginning of s. Returns the segment, the number of bytes consumed, and
// whether the span was well-formed.
func scanCodeBlock(s string) (Segment, int, bool) {
	gt := strings.IndexByte(s, '>')
	if gt == -1 {
		return Segment{}, 0, false
	}
	openTag := s[:gt+1]

	// The only recognized attribute is lang="...".
	lang := ""
	if attrIdx := strings.Index(openTag, `lang="`); attrIdx != -1 {
		valStart := attrIdx + len(`lang="`)
		if end := strings.IndexByte(openTag[valStart:], '"'); end != -1 {
			lang = openTag[valStart : valStart+end]
		}
	}

	closeIdx := strings.Index(s[gt+1:], codeClose)
	if closeIdx == -1 {
		return Segment{}, 0, false
	}

	source := s[gt+1 : gt+1+closeIdx]
	consumed := gt + 1 + closeIdx + len(codeClose)
	return Segment{
		Kind: SegmentCodeBlock,
		Code: &CodeBlock{Lang: lang, Source: strings.Trim(source, "\n")},
	}, consumed, true
}

// scanCommand parses a <command>{...}</command> span starting at the
// beginning of s.
func scanCommand(s string) (Segment, int, bool) {
	closeIdx := strings.Index(s, cmdClose)
	if closeIdx == -1 {
		return Segment{}, 0, false
	}

	payload := strings.TrimSpace(s[len(cmdOpen):closeIdx])
	consumed := closeIdx + len(cmdClose)

	seg := Segment{Kind: SegmentCommandCall, Raw: payload}
	obj, err := FirstJSONObject(payload)
	if err != nil {
		return seg, consumed, true
	}

	var call CommandCall
	if err := json.Unmarshal([]byte(obj), &call); err != nil || call.Cmd == "" {
		return seg, consumed, true
	}
	seg.Command = &call
	return seg, consumed, true
}

// CodeBlocks returns all code block segments.
func CodeBlocks(segments []Segment) []CodeBlock {
	var blocks []CodeBlock
	for _, seg := range segments {
		if seg.Kind == SegmentCodeBlock && seg.Code != nil {
			blocks = append(blocks, *seg.Code)
		}
	}
	return blocks
}

// CommandCalls returns all successfully parsed command call segments.
func CommandCalls(segments []Segment) []CommandCall {
	var calls []CommandCall
	for _, seg := range segments {
		if seg.Kind == SegmentCommandCall && seg.Command != nil {
			calls = append(calls, *seg.Command)
		}
	}
	return calls
}
