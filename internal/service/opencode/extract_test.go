package opencode

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("invalid fixture %q: %v", s, err)
	}
	return v
}

func TestExtractReplyText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "parts text trimmed", in: `{"parts":[{"type":"text","text":"  ok  "}]}`, want: "ok"},
		{name: "capitalized parts", in: `{"Parts":[{"Text":"cap"}]}`, want: "cap"},
		{name: "upper-case keys", in: `{"PARTS":[{"TEXT":"upper"}]}`, want: "upper"},
		{name: "skips blank parts", in: `{"parts":[{"type":"step-start"},{"type":"text","text":"  "},"junk",{"type":"text","text":"second"}]}`, want: "second"},
		{name: "parts preferred over content", in: `{"content":"flat","parts":[{"text":"from parts"}]}`, want: "from parts"},
		{name: "falls back to content", in: `{"parts":[{"text":" "}],"content":"direct"}`, want: "direct"},
		{name: "content only", in: `{"content":"direct"}`, want: "direct"},
		{name: "Content capitalized", in: `{"Content":"cap content"}`, want: "cap content"},
		{name: "content before text", in: `{"text":"t","content":"c"}`, want: "c"},
		{name: "text when content blank", in: `{"content":"  ","text":"t"}`, want: "t"},
		{name: "Text key", in: `{"Text":"T"}`, want: "T"},
		{name: "non-string content", in: `{"content":{"text":"nested"}}`, want: ""},
		{name: "parts not a list", in: `{"parts":{"text":"x"}}`, want: ""},
		{name: "empty object", in: `{}`, want: ""},
		{name: "all whitespace", in: `{"parts":[{"text":"\n"}],"content":" ","text":"\t"}`, want: ""},
		{name: "array root", in: `[{"text":"x"}]`, want: ""},
		{name: "null", in: `null`, want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractReplyText(decode(t, tc.in)); got != tc.want {
				t.Fatalf("ExtractReplyText(%s) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestExtractReplyTextNil(t *testing.T) {
	if got := ExtractReplyText(nil); got != "" {
		t.Fatalf("expected empty string for nil, got %q", got)
	}
}
