package orchestrator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrTemplate reports an invalid stage template or variant definition.
var ErrTemplate = errors.New("invalid template")

type slotKind int

const (
	literal slotKind = iota
	slotQuery
	slotEvidence
	slotMemory
	slotStage
	slotInput
)

type segment struct {
	kind slotKind
	text string // literal text, or the stage/input name
}

// Template is a parsed stage instruction. Placeholders are resolved at parse
// time into typed slots: {{query}}, {{evidence}}, {{memory}},
// {{stage.<name>}} and {{input.<name>}}.
type Template struct {
	raw  string
	segs []segment
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}]*?)\s*\}\}`)

// ParseTemplate parses s. An unknown or malformed placeholder is an error
// rather than being left in the output.
func ParseTemplate(s string) (*Template, error) {
	t := &Template{raw: s}
	last := 0
	for _, m := range placeholderRe.FindAllStringSubmatchIndex(s, -1) {
		if err := t.addLiteral(s[last:m[0]]); err != nil {
			return nil, err
		}
		seg, err := parseSlot(s[m[2]:m[3]])
		if err != nil {
			return nil, err
		}
		t.segs = append(t.segs, seg)
		last = m[1]
	}
	if err := t.addLiteral(s[last:]); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Template) addLiteral(s string) error {
	if s == "" {
		return nil
	}
	if strings.Contains(s, "{{") || strings.Contains(s, "}}") {
		return fmt.Errorf("%w: unbalanced braces near %q", ErrTemplate, excerpt(s))
	}
	t.segs = append(t.segs, segment{kind: literal, text: s})
	return nil
}

func parseSlot(name string) (segment, error) {
	switch name {
	case "query":
		return segment{kind: slotQuery}, nil
	case "evidence":
		return segment{kind: slotEvidence}, nil
	case "memory":
		return segment{kind: slotMemory}, nil
	}
	if ref, ok := strings.CutPrefix(name, "stage."); ok && ref != "" {
		return segment{kind: slotStage, text: ref}, nil
	}
	if ref, ok := strings.CutPrefix(name, "input."); ok && ref != "" {
		return segment{kind: slotInput, text: ref}, nil
	}
	return segment{}, fmt.Errorf("%w: unknown placeholder {{%s}}", ErrTemplate, name)
}

// StageRefs returns the earlier stages the template reads, in order of first use.
func (t *Template) StageRefs() []string { return t.refs(slotStage) }

// InputRefs returns the named inputs the template reads.
func (t *Template) InputRefs() []string { return t.refs(slotInput) }

func (t *Template) refs(kind slotKind) []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range t.segs {
		if s.kind == kind && !seen[s.text] {
			seen[s.text] = true
			out = append(out, s.text)
		}
	}
	return out
}

// Slots holds the values substituted into a template.
type Slots struct {
	Query    string
	Evidence string
	Memory   string
	// Stages maps completed stage names to their frozen output.
	Stages map[string]string
	Inputs map[string]string
}

// Render substitutes every slot. A stage or input that has no value is an
// error, never an empty substitution.
func (t *Template) Render(s Slots) (string, error) {
	var sb strings.Builder
	sb.Grow(len(t.raw))
	for _, seg := range t.segs {
		switch seg.kind {
		case literal:
			sb.WriteString(seg.text)
		case slotQuery:
			sb.WriteString(s.Query)
		case slotEvidence:
			sb.WriteString(s.Evidence)
		case slotMemory:
			sb.WriteString(s.Memory)
		case slotStage:
			v, ok := s.Stages[seg.text]
			if !ok {
				return "", fmt.Errorf("%w: stage %q has not completed", ErrTemplate, seg.text)
			}
			sb.WriteString(v)
		case slotInput:
			v, ok := s.Inputs[seg.text]
			if !ok {
				return "", fmt.Errorf("%w: input %q not provided", ErrTemplate, seg.text)
			}
			sb.WriteString(v)
		}
	}
	return sb.String(), nil
}

// String returns the unparsed template.
func (t *Template) String() string { return t.raw }

func excerpt(s string) string {
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}
