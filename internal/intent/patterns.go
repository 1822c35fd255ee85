package intent

import "regexp"

var (
	greetingRe = regexp.MustCompile(`^(hi|hello|hey|yo|hiya|thanks|thank you|thx|ty|ok|okay|cool|great|nice|got it|bye|goodbye|cheers|good (morning|afternoon|evening|night))( there| again| so much| a lot)?[\s!.,?]*$`)

	verbatimRe = regexp.MustCompile(`\bquotes?\b|\bquoting\b|exact words|exactly what .* (said|wrote)|\bverbatim\b|\bcite\b|\bcitation\b|word for word`)

	directReadRe = regexp.MustCompile(`\bread\b.*\b(page|chapter|section)\s+(\d+|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|[ivxl]+)\b|\bforeword\b|\bpreface\b|\bbeginning of\b|\bintroduction of\b`)
)

type emotionGroup struct {
	emotion  Emotion
	patterns []*regexp.Regexp
}

// emotionBank is scanned in declaration order; earlier groups win ties.
var emotionBank = []emotionGroup{
	{Vulnerable, compileAll(
		`\b(scared|afraid|frightened|terrified)\b`,
		`\b(anxious|anxiety|worried|panic)\b`,
		`\b(lonely|alone|isolated)\b`,
		`\b(hurt|hurting|broken|heartbroken)\b`,
		`\b(lost|hopeless|helpless)\b`,
		`\b(overwhelmed|exhausted|burn(ed|t)? out)\b`,
		`\b(sad|depressed|grieving)\b`,
		`\bstruggl(e|ing)\b`,
	)},
	{Frustrated, compileAll(
		`\bfrustrat(ed|ing|ion)\b`,
		`\b(annoyed|irritated)\b`,
		`\b(stuck|blocked)\b`,
		`\b(angry|mad|furious)\b`,
		`\bfed up\b`,
		`\b(not|isn't|doesn't) work(ing)?\b`,
		`\bnothing (works|helps)\b`,
	)},
	{Curious, compileAll(
		`\bcurious\b`,
		`\bwonder(ing)?\b`,
		`\bwhy (does|do|is|are)\b`,
		`\binterest(ed|ing)\b`,
		`\bwhat if\b`,
	)},
	{Determined, compileAll(
		`\bdetermined\b`,
		`\bcommit(ted)?\b`,
		`\bi will\b`,
		`\bi'?m going to\b`,
		`\bready to\b`,
		`\bno matter what\b`,
	)},
	{Excited, compileAll(
		`\bexcit(ed|ing)\b`,
		`\b(amazing|awesome|wonderful)\b`,
		`\bcan'?t wait\b`,
		`\blove (this|it)\b`,
		`!{2,}`,
	)},
}

type subCheck struct {
	archetype Archetype
	re        *regexp.Regexp
	weight    float64
}

// archetypeChecks are independent weighted sub-checks; every match adds its
// weight to the archetype's score.
var archetypeChecks = []subCheck{
	{Understanding, regexp.MustCompile(`\bwhat (is|are|does)\b|\bmeaning of\b|\bmean(s)?\b`), 0.3},
	{Understanding, regexp.MustCompile(`\bwhy\b`), 0.2},
	{Understanding, regexp.MustCompile(`\bexplain\b|\bunderstand(ing)?\b|\bclarify\b`), 0.4},
	{Understanding, regexp.MustCompile(`\bdifference between\b|\bconcept of\b`), 0.3},

	{Action, regexp.MustCompile(`\bhow (do|can|should) i\b`), 0.4},
	{Action, regexp.MustCompile(`\b(steps?|practi[cs]e|daily|routine|exercises?)\b`), 0.3},
	{Action, regexp.MustCompile(`\b(start|begin|technique|method)\b`), 0.2},

	{Exploration, regexp.MustCompile(`\btell me (about|more)\b|\bmore about\b`), 0.4},
	{Exploration, regexp.MustCompile(`\bexplore\b|\bwhat else\b|\bother (ways|ideas|views)\b`), 0.3},
	{Exploration, regexp.MustCompile(`\b(ideas?|perspectives?|thoughts on)\b`), 0.2},

	{Comfort, regexp.MustCompile(`\bi feel\b|\bfeeling\b|\bi'?m (so )?(sad|scared|lost|hurt)\b`), 0.4},
	{Comfort, regexp.MustCompile(`\b(cope|coping|comfort|heal|healing)\b`), 0.3},
	{Comfort, regexp.MustCompile(`\bhelp me\b|\bsupport\b|\bhard time\b`), 0.2},

	{Application, regexp.MustCompile(`\b(apply|applying|application)\b|\buse this\b|\bput (this|it) into\b`), 0.4},
	{Application, regexp.MustCompile(`\bin my (life|work|job|relationship|family)\b|\bat work\b|\breal life\b`), 0.3},
	{Application, regexp.MustCompile(`\b(situation|scenario|example)\b`), 0.2},

	{Verbatim, regexp.MustCompile(`\b(said|says|wrote|written)\b`), 0.3},
	{Verbatim, regexp.MustCompile(`\b(passage|words|phrase)\b`), 0.2},
	{Verbatim, regexp.MustCompile(`\b(exactly|precisely|original)\b`), 0.2},
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}
