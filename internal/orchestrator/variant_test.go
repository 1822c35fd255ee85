package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinVariantsCompile(t *testing.T) {
	r, err := NewRegistry(BuiltinVariants()...)
	require.NoError(t, err)

	names := []string{}
	for _, v := range r.List() {
		names = append(names, v.Name)
	}
	assert.Equal(t, []string{"chat", "deep", "direct", "persona", "research"}, names)

	deep, ok := r.Get(VariantDeep)
	require.True(t, ok)
	require.Len(t, deep.Stages, 3)
	assert.False(t, deep.Stages[0].Visible)
	assert.False(t, deep.Stages[1].Visible)
	assert.True(t, deep.Stages[2].Visible)

	research, _ := r.Get(VariantResearch)
	assert.Equal(t, VariantPersona, research.Handoff)
	for _, st := range research.Stages {
		assert.False(t, st.Visible, st.Name)
	}
}

func TestVariantCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		v    Variant
	}{
		{"no name", Variant{Stages: []Stage{{Name: "a"}}}},
		{"no stages", Variant{Name: "x"}},
		{"unnamed stage", Variant{Name: "x", Stages: []Stage{{Template: "hi"}}}},
		{"duplicate stage", Variant{Name: "x", Stages: []Stage{{Name: "a"}, {Name: "a"}}}},
		{"self reference", Variant{Name: "x", Stages: []Stage{{Name: "a", Template: "{{stage.a}}"}}}},
		{"forward reference", Variant{Name: "x", Stages: []Stage{
			{Name: "a", Template: "{{stage.b}}"},
			{Name: "b", Template: "{{query}}"},
		}}},
		{"unknown stage", Variant{Name: "x", Stages: []Stage{{Name: "a", Template: "{{stage.zzz}}"}}}},
		{"undeclared input", Variant{Name: "x", Stages: []Stage{{Name: "a", Template: "{{input.findings}}"}}}},
		{"bad slot", Variant{Name: "x", Stages: []Stage{{Name: "a", Template: "{{evidense}}"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.v.Compile(), ErrTemplate)
		})
	}
}

func TestRegistry_Handoffs(t *testing.T) {
	_, err := NewRegistry(Variant{Name: "a", Handoff: "missing", Stages: []Stage{{Name: "s"}}})
	require.ErrorIs(t, err, ErrTemplate)

	_, err = NewRegistry(
		Variant{Name: "a", Handoff: "b", Stages: []Stage{{Name: "s"}}},
		Variant{Name: "b", Stages: []Stage{{Name: "s"}}},
	)
	require.ErrorIs(t, err, ErrTemplate, "target without findings input")

	r, err := NewRegistry(BuiltinVariants()...)
	require.NoError(t, err)
	err = r.Register(Variant{Name: VariantPersona, Stages: []Stage{{Name: "s", Template: "{{query}}"}}})
	require.ErrorIs(t, err, ErrTemplate)

	// the rejected override must not replace the working one
	p, _ := r.Get(VariantPersona)
	assert.Equal(t, []string{HandoffInput}, p.Inputs)
}

const customYAML = `
variants:
  - name: brief
    description: one short answer
    stages:
      - name: answer
        visible: true
        max_tokens: 256
        template: |
          Answer briefly: {{query}}
          {{evidence}}
  - name: deep
    stages:
      - name: draft
        think: true
        template: "Draft: {{query}}"
      - name: final
        visible: true
        template: "Polish: {{stage.draft}}"
`

func TestLoadVariants(t *testing.T) {
	vs, err := LoadVariants([]byte(customYAML))
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, "brief", vs[0].Name)
	assert.Equal(t, 256, vs[0].Stages[0].MaxTokens)
	assert.True(t, vs[1].Stages[0].Think)

	r, err := NewRegistry(append(BuiltinVariants(), vs...)...)
	require.NoError(t, err)
	deep, _ := r.Get(VariantDeep)
	assert.Len(t, deep.Stages, 2, "file definition overrides built-in")
}

func TestLoadVariants_Invalid(t *testing.T) {
	_, err := LoadVariants([]byte("variants: [}"))
	require.Error(t, err)

	_, err = LoadVariants([]byte(`
variants:
  - name: bad
    stages:
      - name: a
        template: "{{stage.b}}"
`))
	require.ErrorIs(t, err, ErrTemplate)
}

func TestLoadVariantsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "variants.yaml")
	require.NoError(t, os.WriteFile(path, []byte(customYAML), 0o644))
	vs, err := LoadVariantsFile(path)
	require.NoError(t, err)
	assert.Len(t, vs, 2)

	_, err = LoadVariantsFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
