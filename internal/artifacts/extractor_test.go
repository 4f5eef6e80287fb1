package artifacts

import (
	"strings"
	"testing"

	"github.com/grandcafe/concierge/pkg/models"
)

func collect(chunks []Chunk) (string, []*models.Artifact) {
	var text strings.Builder
	var arts []*models.Artifact
	for _, c := range chunks {
		if c.Artifact != nil {
			arts = append(arts, c.Artifact)
			continue
		}
		text.WriteString(c.Text)
	}
	return text.String(), arts
}

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantText  string
		wantArts  int
		wantType  models.ArtifactType
		wantTitle string
	}{
		{
			name:     "no artifacts",
			input:    "Tonight we have 42 covers booked.",
			wantText: "Tonight we have 42 covers booked.",
		},
		{
			name:      "single chart",
			input:     "Here you go:\n```artifact:chart:Weekly covers\n{\"labels\":[1,2]}\n```\nDone.",
			wantText:  "Here you go:\n\nDone.",
			wantArts:  1,
			wantType:  models.ArtifactChart,
			wantTitle: "Weekly covers",
		},
		{
			name:     "untitled table",
			input:    "```artifact:table\na,b\n1,2\n```",
			wantArts: 1,
			wantType: models.ArtifactTable,
		},
		{
			name:     "unterminated fence becomes text",
			input:    "Intro ```artifact:html:Menu\n<h1>never closed",
			wantText: "Intro ```artifact:html:Menu\n<h1>never closed",
		},
		{
			name:     "unknown type stays literal",
			input:    "```artifact:hologram:Future\nnope\n```",
			wantText: "```artifact:hologram:Future\nnope\n```",
		},
		{
			name:     "plain code fence untouched",
			input:    "```sql\nSELECT 1;\n```",
			wantText: "```sql\nSELECT 1;\n```",
		},
		{
			name:     "two artifacts in one message",
			input:    "```artifact:table\nx\n``` and ```artifact:mermaid:Flow\ngraph TD\n```",
			wantText: " and ",
			wantArts: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, arts := Parse("msg-1", tt.input)
			if text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
			if len(arts) != tt.wantArts {
				t.Fatalf("got %d artifacts, want %d", len(arts), tt.wantArts)
			}
			if tt.wantArts == 1 {
				if arts[0].Type != tt.wantType {
					t.Errorf("type = %s, want %s", arts[0].Type, tt.wantType)
				}
				if arts[0].Title != tt.wantTitle {
					t.Errorf("title = %q, want %q", arts[0].Title, tt.wantTitle)
				}
			}
		})
	}
}

func TestExtractor_FenceSplitAcrossDeltas(t *testing.T) {
	e := NewExtractor("msg-7")

	var all []Chunk
	// The fence opener, header, body, and closer all straddle boundaries.
	deltas := []string{
		"Sales chart coming up: ``",
		"`artifact:chart:Augu",
		"st\n{\"total\": 48",
		"210}\n``",
		"` that's the summary.",
	}
	for _, d := range deltas {
		all = append(all, e.Feed(d)...)
	}
	all = append(all, e.Flush()...)

	text, arts := collect(all)
	if text != "Sales chart coming up:  that's the summary." {
		t.Errorf("text = %q", text)
	}
	if len(arts) != 1 {
		t.Fatalf("got %d artifacts, want 1", len(arts))
	}
	a := arts[0]
	if a.Type != models.ArtifactChart || a.Title != "August" {
		t.Errorf("artifact header = %s/%q", a.Type, a.Title)
	}
	if a.Content != "{\"total\": 48210}\n" {
		t.Errorf("content = %q", a.Content)
	}
}

func TestExtractor_EmitsArtifactOnlyOnClose(t *testing.T) {
	e := NewExtractor("msg-2")

	chunks := e.Feed("```artifact:table:Open\nrow1\nrow2\n")
	if text, arts := collect(chunks); text != "" || len(arts) != 0 {
		t.Fatalf("output before close: text=%q arts=%d", text, len(arts))
	}

	chunks = e.Feed("```")
	_, arts := collect(chunks)
	if len(arts) != 1 {
		t.Fatalf("artifact not emitted on close")
	}
}

func TestExtractor_StableIDs(t *testing.T) {
	input := "```artifact:table\nx\n``````artifact:table\nx\n```"

	_, first := Parse("msg-3", input)
	_, second := Parse("msg-3", input)
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("got %d/%d artifacts, want 2/2", len(first), len(second))
	}
	if first[0].ID != second[0].ID || first[1].ID != second[1].ID {
		t.Error("IDs changed between identical runs")
	}
	if first[0].ID == first[1].ID {
		t.Error("identical content in different positions must get distinct IDs")
	}
	if !strings.HasPrefix(first[0].ID, "msg-3-1-") {
		t.Errorf("ID = %q, want msg-3-1-<hash> form", first[0].ID)
	}
}

func TestExtractor_RoundTrip(t *testing.T) {
	inputs := []string{
		"plain text only",
		"a ```artifact:chart:T\nbody\n``` b",
		"``` loose fence",
		"ends with opener ``",
		"```artifact:html\n<div>x</div>\n```",
		"```artifact:unknowntype\nbody\n```",
		"unterminated ```artifact:pdf:Doc\ncontent",
	}

	for _, input := range inputs {
		e := NewExtractor("msg-rt")
		var rebuilt strings.Builder
		emit := func(chunks []Chunk) {
			for _, c := range chunks {
				if c.Artifact != nil {
					rebuilt.WriteString(Fence(c.Artifact))
					continue
				}
				rebuilt.WriteString(c.Text)
			}
		}
		// Feed one byte at a time to exercise every boundary.
		for i := 0; i < len(input); i++ {
			emit(e.Feed(input[i : i+1]))
		}
		emit(e.Flush())

		if rebuilt.String() != input {
			t.Errorf("round trip mismatch:\n in: %q\nout: %q", input, rebuilt.String())
		}
	}
}
