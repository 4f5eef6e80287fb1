package models

// ArtifactType classifies a structured content block for rich rendering.
type ArtifactType string

const (
	ArtifactHTML     ArtifactType = "html"
	ArtifactChart    ArtifactType = "chart"
	ArtifactTable    ArtifactType = "table"
	ArtifactMermaid  ArtifactType = "mermaid"
	ArtifactCalendar ArtifactType = "calendar"
	ArtifactPDF      ArtifactType = "pdf"
	ArtifactCode     ArtifactType = "code"
	ArtifactForm     ArtifactType = "form"
)

// KnownArtifactType reports whether t is one of the renderable types.
func KnownArtifactType(t ArtifactType) bool {
	switch t {
	case ArtifactHTML, ArtifactChart, ArtifactTable, ArtifactMermaid,
		ArtifactCalendar, ArtifactPDF, ArtifactCode, ArtifactForm:
		return true
	}
	return false
}

// Artifact is a typed content block extracted from streamed assistant text.
// Immutable once emitted; the core never re-reads it. IDs are stable:
// re-processing the same completed message yields identical ids.
type Artifact struct {
	ID      string       `json:"id"`
	Type    ArtifactType `json:"type"`
	Title   string       `json:"title,omitempty"`
	Content string       `json:"content"`
}
