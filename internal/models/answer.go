package models

import (
	"fmt"
	"strings"
)

// Image is an image path with the caption shown next to it.
type Image struct {
	Path    string `json:"path"`
	Caption string `json:"caption"`
}

// RelatedDocument is a keyword hit offered when the message carried no identifier.
type RelatedDocument struct {
	Collection string  `json:"collection"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// AnswerBundle aggregates what the join paths found for one message.
type AnswerBundle struct {
	PANumber string            `json:"pa_number,omitempty"`
	Filename string            `json:"filename,omitempty"`
	APIID    string            `json:"api_id,omitempty"`
	Images   []Image           `json:"images,omitempty"`
	APIList  string            `json:"api_list,omitempty"`
	APISpec  string            `json:"api_spec,omitempty"`
	Diagram  *Image            `json:"diagram,omitempty"`
	Related  []RelatedDocument `json:"related,omitempty"`
}

// NoDataMessage is the reply when no join path contributed anything.
const NoDataMessage = "No matching data was found for your question."

// Empty reports whether no join path contributed.
func (b *AnswerBundle) Empty() bool {
	return b == nil || (len(b.Images) == 0 && b.APIList == "" && b.APISpec == "" && b.Diagram == nil)
}

// AllImages returns page images followed by the diagram, if any.
func (b *AnswerBundle) AllImages() []Image {
	if b == nil {
		return nil
	}
	out := append([]Image(nil), b.Images...)
	if b.Diagram != nil {
		out = append(out, *b.Diagram)
	}
	return out
}

// Render produces the single markdown reply for the transcript.
func (b *AnswerBundle) Render() string {
	if b.Empty() {
		if b != nil && len(b.Related) > 0 {
			var sb strings.Builder
			sb.WriteString(NoDataMessage)
			sb.WriteString("\n\nRelated entries:")
			for _, r := range b.Related {
				fmt.Fprintf(&sb, "\n- [%s] %s", r.Collection, firstLine(r.Text))
			}
			return sb.String()
		}
		return NoDataMessage
	}
	var parts []string
	if len(b.Images) > 0 || b.APIList != "" {
		parts = append(parts, fmt.Sprintf("%s: PA number %s, %d image(s) and API information:\n%s",
			b.Filename, b.PANumber, len(b.Images), b.APIList))
	}
	if b.APISpec != "" {
		parts = append(parts, "API specification:\n"+b.APISpec)
	}
	if b.Diagram != nil {
		parts = append(parts, fmt.Sprintf("UML Diagram:\n![UML Diagram](%s)", b.Diagram.Path))
	}
	return strings.Join(parts, "\n\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
