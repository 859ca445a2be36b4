package extract

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Segment
	}{
		{
			name:  "plain text only",
			input: "just thinking out loud here",
			want: []Segment{
				{Kind: SegmentPlainText, Text: "just thinking out loud here"},
			},
		},
		{
			name:  "code block with language",
			input: `before <execute lang="python">print("hi")</execute> after`,
			want: []Segment{
				{Kind: SegmentPlainText, Text: "before "},
				{Kind: SegmentCodeBlock, Code: &CodeBlock{Lang: "python", Source: `print("hi")`}},
				{Kind: SegmentPlainText, Text: " after"},
			},
		},
		{
			name:  "code block without language",
			input: "<execute>ls -la</execute>",
			want: []Segment{
				{Kind: SegmentCodeBlock, Code: &CodeBlock{Source: "ls -la"}},
			},
		},
		{
			name:  "surrounding newlines trimmed from source",
			input: "<execute lang=\"sh\">\necho one\necho two\n</execute>",
			want: []Segment{
				{Kind: SegmentCodeBlock, Code: &CodeBlock{Lang: "sh", Source: "echo one\necho two"}},
			},
		},
		{
			name:  "command call",
			input: `<command>{"cmd": "search", "params": {"query": "golang"}}</command>`,
			want: []Segment{
				{
					Kind:    SegmentCommandCall,
					Command: &CommandCall{Cmd: "search", Params: map[string]interface{}{"query": "golang"}},
					Raw:     `{"cmd": "search", "params": {"query": "golang"}}`,
				},
			},
		},
		{
			name:  "command payload wrapped in prose still parses",
			input: `<command>here you go: {"cmd": "ping"} hope that helps</command>`,
			want: []Segment{
				{
					Kind:    SegmentCommandCall,
					Command: &CommandCall{Cmd: "ping"},
					Raw:     `here you go: {"cmd": "ping"} hope that helps`,
				},
			},
		},
		{
			name:  "unparseable command payload keeps raw",
			input: `<command>{"cmd": broken}</command>`,
			want: []Segment{
				{Kind: SegmentCommandCall, Raw: `{"cmd": broken}`},
			},
		},
		{
			name:  "payload without cmd keeps raw",
			input: `<command>{"params": {}}</command>`,
			want: []Segment{
				{Kind: SegmentCommandCall, Raw: `{"params": {}}`},
			},
		},
		{
			name:  "unterminated tag stays text",
			input: `<execute lang="python">print("hi")`,
			want: []Segment{
				{Kind: SegmentPlainText, Text: `<execute lang="python">print("hi")`},
			},
		},
		{
			name:  "longer tag name is not an execute tag",
			input: "<executed>done</executed>",
			want: []Segment{
				{Kind: SegmentPlainText, Text: "<executed>done</executed>"},
			},
		},
		{
			name: "interleaved actions keep order",
			input: `First run this:
<execute lang="sh">date</execute>
then call <command>{"cmd": "notify"}</command> done.`,
			want: []Segment{
				{Kind: SegmentPlainText, Text: "First run this:\n"},
				{Kind: SegmentCodeBlock, Code: &CodeBlock{Lang: "sh", Source: "date"}},
				{Kind: SegmentPlainText, Text: "\nthen call "},
				{Kind: SegmentCommandCall, Command: &CommandCall{Cmd: "notify"}, Raw: `{"cmd": "notify"}`},
				{Kind: SegmentPlainText, Text: " done."},
			},
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.input)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Tokenize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCodeBlocksAndCommandCalls(t *testing.T) {
	segments := Tokenize(`<execute lang="py">a()</execute> mid <command>{"cmd": "x"}</command> <command>{nope}</command>`)

	blocks := CodeBlocks(segments)
	if len(blocks) != 1 || blocks[0].Source != "a()" {
		t.Errorf("CodeBlocks() = %+v", blocks)
	}

	calls := CommandCalls(segments)
	if len(calls) != 1 || calls[0].Cmd != "x" {
		t.Errorf("CommandCalls() = %+v, want only the parseable call", calls)
	}
}
