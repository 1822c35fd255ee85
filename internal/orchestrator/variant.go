package orchestrator

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// HandoffInput is the input name a handoff variant receives the previous
// variant's combined stage outputs under.
const HandoffInput = "findings"

// Stage is one LLM pass of a variant.
type Stage struct {
	Name     string `yaml:"name" json:"name"`
	Template string `yaml:"template" json:"-"`
	// Visible stages produce user-facing text; the rest are intermediate.
	Visible     bool    `yaml:"visible,omitempty" json:"visible"`
	Think       bool    `yaml:"think,omitempty" json:"think,omitempty"`
	Model       string  `yaml:"model,omitempty" json:"model,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`

	tmpl *Template
}

// Variant is a named, ordered list of stages. Variants differ only in data.
type Variant struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Inputs      []string `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	// Handoff names a variant run after this one with the combined stage
	// outputs as input HandoffInput.
	Handoff string  `yaml:"handoff,omitempty" json:"handoff,omitempty"`
	Stages  []Stage `yaml:"stages" json:"stages"`

	compiled bool
}

// Compile parses every stage template and checks that stage references
// point only at earlier stages and input references at declared inputs.
func (v *Variant) Compile() error {
	if v.Name == "" {
		return fmt.Errorf("%w: variant name is required", ErrTemplate)
	}
	if len(v.Stages) == 0 {
		return fmt.Errorf("%w: variant %q has no stages", ErrTemplate, v.Name)
	}

	done := make(map[string]bool, len(v.Stages))
	for i := range v.Stages {
		st := &v.Stages[i]
		if st.Name == "" {
			return fmt.Errorf("%w: variant %q stage %d has no name", ErrTemplate, v.Name, i+1)
		}
		if done[st.Name] {
			return fmt.Errorf("%w: variant %q has duplicate stage %q", ErrTemplate, v.Name, st.Name)
		}

		t, err := ParseTemplate(st.Template)
		if err != nil {
			return fmt.Errorf("variant %q stage %q: %w", v.Name, st.Name, err)
		}
		for _, ref := range t.StageRefs() {
			switch {
			case ref == st.Name:
				return fmt.Errorf("%w: variant %q stage %q references itself", ErrTemplate, v.Name, st.Name)
			case !done[ref]:
				if v.stageIndex(ref) > i {
					return fmt.Errorf("%w: variant %q stage %q references later stage %q", ErrTemplate, v.Name, st.Name, ref)
				}
				return fmt.Errorf("%w: variant %q stage %q references unknown stage %q", ErrTemplate, v.Name, st.Name, ref)
			}
		}
		for _, ref := range t.InputRefs() {
			if !slices.Contains(v.Inputs, ref) {
				return fmt.Errorf("%w: variant %q stage %q uses undeclared input %q", ErrTemplate, v.Name, st.Name, ref)
			}
		}

		st.tmpl = t
		done[st.Name] = true
	}
	v.compiled = true
	return nil
}

func (v *Variant) stageIndex(name string) int {
	for i, st := range v.Stages {
		if st.Name == name {
			return i
		}
	}
	return -1
}

// Registry holds the compiled variants available to callers.
type Registry struct {
	mu       sync.RWMutex
	variants map[string]*Variant
}

// NewRegistry compiles and registers vs. Later entries replace earlier ones
// with the same name. Handoff targets are checked once all are registered.
func NewRegistry(vs ...Variant) (*Registry, error) {
	r := &Registry{variants: make(map[string]*Variant, len(vs))}
	for _, v := range vs {
		if err := v.Compile(); err != nil {
			return nil, err
		}
		r.variants[v.Name] = &v
	}
	if err := r.checkHandoffs(); err != nil {
		return nil, err
	}
	return r, nil
}

// Register compiles v and adds or replaces it.
func (r *Registry) Register(v Variant) error {
	if err := v.Compile(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, had := r.variants[v.Name]
	r.variants[v.Name] = &v
	if err := r.checkHandoffs(); err != nil {
		if had {
			r.variants[v.Name] = prev
		} else {
			delete(r.variants, v.Name)
		}
		return err
	}
	return nil
}

func (r *Registry) checkHandoffs() error {
	for _, v := range r.variants {
		if v.Handoff == "" {
			continue
		}
		target, ok := r.variants[v.Handoff]
		if !ok {
			return fmt.Errorf("%w: variant %q hands off to unknown variant %q", ErrTemplate, v.Name, v.Handoff)
		}
		if target.Handoff != "" {
			return fmt.Errorf("%w: handoff target %q must not hand off again", ErrTemplate, target.Name)
		}
		if !slices.Contains(target.Inputs, HandoffInput) {
			return fmt.Errorf("%w: handoff target %q does not declare input %q", ErrTemplate, target.Name, HandoffInput)
		}
	}
	return nil
}

// Get returns the named variant.
func (r *Registry) Get(name string) (*Variant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.variants[name]
	return v, ok
}

// List returns all variants sorted by name.
func (r *Registry) List() []*Variant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Variant, 0, len(r.variants))
	for _, v := range r.variants {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type variantsFile struct {
	Variants []Variant `yaml:"variants"`
}

// LoadVariants parses a YAML document holding a top-level variants list.
func LoadVariants(data []byte) ([]Variant, error) {
	var f variantsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse variants YAML: %w", err)
	}
	for i := range f.Variants {
		if err := f.Variants[i].Compile(); err != nil {
			return nil, err
		}
	}
	return f.Variants, nil
}

// LoadVariantsFile reads and parses a variants YAML file.
func LoadVariantsFile(path string) ([]Variant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading variants: %w", err)
	}
	return LoadVariants(data)
}
