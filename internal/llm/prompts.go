package llm

import "fmt"

// SummaryPrompt generates the prompt for tier2 promotion: a compact
// narrative summary of a raw note.
func SummaryPrompt(content string) string {
	return fmt.Sprintf(`You are a note compression system. Summarize this note into a compact narrative.

NOTE:
%s

Rules:
- Preserve decisions, outcomes, names, and dates exactly
- Drop filler, greetings, and speculation
- Target roughly one quarter of the original length
- Return ONLY the summary text, no preamble`, content)
}

// LessonPrompt generates the prompt for tier3 crystallization: distilled
// bullet lessons rather than narrative.
func LessonPrompt(content string) string {
	return fmt.Sprintf(`You are a note distillation system. Extract the durable lessons from this material.

MATERIAL:
%s

Rules:
- Return bullet points only, one lesson per line, each starting with "- "
- Each lesson must stand alone without the source text
- Keep what would still matter in six months; drop the rest
- Return ONLY the bullets, no preamble`, content)
}
