package orchestrator

// Names of the built-in variants.
const (
	VariantChat     = "chat"
	VariantDirect   = "direct"
	VariantResearch = "research"
	VariantPersona  = "persona"
	VariantDeep     = "deep"
)

const voice = `You are a warm, grounded guide who draws on a body of contemplative teaching.
Speak plainly and kindly. Never invent quotations; when you quote, quote only from the evidence you are given.`

// BuiltinVariants returns the stock pipeline shapes.
func BuiltinVariants() []Variant {
	return []Variant{
		{
			Name:        VariantChat,
			Description: "single conversational reply, no evidence",
			Stages: []Stage{{
				Name:      "reply",
				Visible:   true,
				MaxTokens: 512,
				Template: voice + `

The user is making small talk or acknowledging something. Reply briefly and naturally.
{{memory}}`,
			}},
		},
		{
			Name:        VariantDirect,
			Description: "present a passage read directly from a document",
			Stages: []Stage{{
				Name:    "present",
				Visible: true,
				Template: voice + `

The user asked to read a specific part of a text. The passage is below.
Reproduce it faithfully, fixing only obvious extraction artifacts, then add at most two sentences of orientation.

Passage:
{{evidence}}`,
			}},
		},
		{
			Name:        VariantResearch,
			Description: "evidence scout and synthesis, handed to the persona pass",
			Handoff:     VariantPersona,
			Stages: []Stage{
				{
					Name:  "scout",
					Think: true,
					Template: `You are an evidence scout. From the passages below, list every point that bears on the question.
Cite each point by its passage number. Say plainly when the evidence does not answer the question.

Question: {{query}}

Passages:
{{evidence}}`,
				},
				{
					Name:  "synthesis",
					Think: true,
					Template: `Combine the scout's notes into a short, ordered set of findings that answer the question.
Keep passage citations. Drop anything the evidence does not support.

Question: {{query}}

Scout notes:
{{stage.scout}}`,
				},
			},
		},
		{
			Name:        VariantPersona,
			Description: "persona-voiced answer over research findings",
			Inputs:      []string{HandoffInput},
			Stages: []Stage{{
				Name:    "answer",
				Visible: true,
				Template: voice + `

Answer the user's question using these research findings. Quote only what the findings quote.

Findings:
{{input.findings}}

What you know about the user:
{{memory}}`,
			}},
		},
		{
			Name:        VariantDeep,
			Description: "explore, self-critique and final synthesis",
			Stages: []Stage{
				{
					Name:  "explore",
					Think: true,
					Template: `Explore the question using the passages below. Draft a thorough answer with passage citations.

Question: {{query}}

Passages:
{{evidence}}

What you know about the user:
{{memory}}`,
				},
				{
					Name:  "critique",
					Think: true,
					Template: `Critique this draft answer. Point out unsupported claims, missing evidence, tone problems and anything that does not address the question.

Question: {{query}}

Passages:
{{evidence}}

Draft:
{{stage.explore}}`,
				},
				{
					Name:    "final",
					Visible: true,
					Template: voice + `

Write the final answer to the question. Start from the draft, apply the critique and keep it grounded in the passages.

Question: {{query}}

Draft:
{{stage.explore}}

Critique:
{{stage.critique}}

Passages:
{{evidence}}`,
				},
			},
		},
	}
}
