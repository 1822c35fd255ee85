package engine

import "github.com/kalambet/sage/internal/ollama"

// Field is one required property of a JSON object reply.
type Field struct {
	Name        string
	Type        string
	Description string
}

// JSONReply constrains a Chat reply to a flat JSON object in which every
// field is required. A nil JSONReply leaves the reply free-form.
type JSONReply []Field

func (j JSONReply) schema() *ollama.Schema {
	if j == nil {
		return nil
	}
	s := &ollama.Schema{Type: "object", Properties: make(map[string]ollama.SchemaProperty, len(j))}
	for _, f := range j {
		s.Properties[f.Name] = ollama.SchemaProperty{Type: f.Type, Description: f.Description}
		s.Required = append(s.Required, f.Name)
	}
	return s
}

// PullProgress reports model download progress.
type PullProgress = ollama.PullProgress
