// Package artifacts extracts fenced artifact blocks from streaming model
// output.
//
// An artifact block looks like:
//
//	```artifact:chart:Weekly covers
//	{"labels": [...], "series": [...]}
//	```
//
// The extractor works incrementally over arbitrary delta boundaries: text
// outside fences is released as soon as it cannot be the start of a fence,
// and an artifact is emitted exactly once, when its closing fence arrives.
// Concatenating the released text with re-rendered fences reproduces the
// model output byte for byte.
package artifacts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/grandcafe/concierge/pkg/models"
)

const fenceOpen = "```artifact:"
const fenceClose = "```"

// Chunk is one piece of extractor output: either plain text or a completed
// artifact, never both.
type Chunk struct {
	Text     string
	Artifact *models.Artifact
}

// Extractor incrementally splits one message's output into text and
// artifacts. Not safe for concurrent use; one extractor serves one message.
type Extractor struct {
	messageID string
	buf       strings.Builder

	inFence     bool
	fenceType   models.ArtifactType
	fenceTitle  string
	fenceHeader string
	ordinal     int
}

// NewExtractor creates an extractor for one message. Artifact IDs derive
// from the message ID, so re-processing the same message yields the same
// IDs.
func NewExtractor(messageID string) *Extractor {
	return &Extractor{messageID: messageID}
}

// Feed consumes the next delta and returns any output that became final:
// plain text that can no longer open a fence, and artifacts whose closing
// fence arrived within this delta.
func (e *Extractor) Feed(delta string) []Chunk {
	e.buf.WriteString(delta)
	var out []Chunk

	for {
		data := e.buf.String()
		if e.inFence {
			end := strings.Index(data, fenceClose)
			if end < 0 {
				// Body still open; hold everything.
				return out
			}
			content := data[:end]
			out = append(out, Chunk{Artifact: e.finishArtifact(content)})
			e.reset(data[end+len(fenceClose):])
			e.inFence = false
			continue
		}

		start := strings.Index(data, fenceOpen)
		if start < 0 {
			// Release all but a possible fence-opener prefix at the tail.
			hold := trailingPrefixLen(data, fenceOpen)
			if emit := data[:len(data)-hold]; emit != "" {
				out = append(out, Chunk{Text: emit})
			}
			e.reset(data[len(data)-hold:])
			return out
		}

		if start > 0 {
			out = append(out, Chunk{Text: data[:start]})
			e.reset(data[start:])
			continue
		}

		// Buffer begins with a fence opener; wait for the full header line.
		nl := strings.IndexByte(data, '\n')
		if nl < 0 {
			return out
		}
		header := data[len(fenceOpen):nl]
		typ, title, ok := parseHeader(header)
		if !ok {
			// Not a well-formed artifact fence. Release the literal
			// backticks and rescan the rest.
			out = append(out, Chunk{Text: fenceClose})
			e.reset(data[len(fenceClose):])
			continue
		}
		e.inFence = true
		e.fenceType = typ
		e.fenceTitle = title
		e.fenceHeader = data[:nl+1]
		e.reset(data[nl+1:])
	}
}

// Flush ends the message. An unterminated fence was never an artifact, so
// its raw bytes come back as plain text.
func (e *Extractor) Flush() []Chunk {
	var out []Chunk
	if e.inFence {
		out = append(out, Chunk{Text: e.fenceHeader + e.buf.String()})
	} else if e.buf.Len() > 0 {
		out = append(out, Chunk{Text: e.buf.String()})
	}
	e.buf.Reset()
	e.inFence = false
	return out
}

func (e *Extractor) finishArtifact(content string) *models.Artifact {
	e.ordinal++
	return &models.Artifact{
		ID:      fmt.Sprintf("%s-%d-%s", e.messageID, e.ordinal, hash8(content)),
		Type:    e.fenceType,
		Title:   e.fenceTitle,
		Content: content,
	}
}

func (e *Extractor) reset(remainder string) {
	e.buf.Reset()
	e.buf.WriteString(remainder)
}

// parseHeader splits "type" or "type:title" and validates the type.
func parseHeader(header string) (models.ArtifactType, string, bool) {
	typ, title, _ := strings.Cut(header, ":")
	if typ == "" || !wordOnly(typ) {
		return "", "", false
	}
	at := models.ArtifactType(typ)
	if !models.KnownArtifactType(at) {
		return "", "", false
	}
	return at, title, true
}

func wordOnly(s string) bool {
	for _, r := range s {
		ok := r == '_' ||
			'a' <= r && r <= 'z' ||
			'A' <= r && r <= 'Z' ||
			'0' <= r && r <= '9'
		if !ok {
			return false
		}
	}
	return true
}

// trailingPrefixLen returns the length of the longest suffix of s that is
// a proper prefix of pat, so a fence opener split across deltas is never
// released as text.
func trailingPrefixLen(s, pat string) int {
	max := len(pat) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(s, pat[:n]) {
			return n
		}
	}
	return 0
}

// Fence renders an artifact back into its fenced source form.
func Fence(a *models.Artifact) string {
	header := fenceOpen + string(a.Type)
	if a.Title != "" {
		header += ":" + a.Title
	}
	return header + "\n" + a.Content + fenceClose
}

// Parse runs the extractor over a complete message and returns the plain
// text with fences removed plus the extracted artifacts.
func Parse(messageID, text string) (string, []*models.Artifact) {
	e := NewExtractor(messageID)
	var plain strings.Builder
	var arts []*models.Artifact
	for _, chunk := range append(e.Feed(text), e.Flush()...) {
		if chunk.Artifact != nil {
			arts = append(arts, chunk.Artifact)
			continue
		}
		plain.WriteString(chunk.Text)
	}
	return plain.String(), arts
}

func hash8(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:4])
}
