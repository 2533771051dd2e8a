package provider

import (
	"fmt"
	"strings"
)

// BuildGradingPrompt constructs the instruction text sent with the region
// image. The directives mirror what reliable exam grading over handwriting
// needs in practice: blank-answer detection, strike-through resolution,
// and a strict JSON-only output contract.
func BuildGradingPrompt(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a professional exam grader. Grade question %s.\n\n", req.QuestionID)
	fmt.Fprintf(&b, "Maximum score: %g points.\n", req.MaxScore)

	if strings.TrimSpace(req.AnswerSpec) != "" {
		b.WriteString("\nReference answer:\n")
		b.WriteString("--------------------------------\n")
		b.WriteString(req.AnswerSpec)
		b.WriteString("\n--------------------------------\n")
		b.WriteString("If the student's answer matches the reference answer (or means the same), it MUST be judged correct and given full marks. For objective questions compare strictly against the reference; for open questions use it as the key-point guide.\n")
	}

	b.WriteString(`
Grading rules:
1. Grade only what is actually visible in the image. Never invent or imagine question content.
`)
	if req.LowConfidenceRegion {
		b.WriteString(fmt.Sprintf("2. The image may contain more than this one question. Locate question %s first, then grade only it.\n", req.QuestionID))
	} else {
		b.WriteString("2. The image is cropped to this single question and the student's answer below it.\n")
	}
	b.WriteString(`3. Strike-throughs: if the student crossed out one option and chose another, grade the final retained answer. If the corrections are too messy to resolve, mark wrong and say so.
4. Blank detection: if the answer area contains only printed material (question text, code scaffolding, blank lines, option letters) and no handwriting at all, the question is unanswered. Score 0. Do not pretend the student wrote something.
5. Handwriting differs visibly from print: uneven strokes, skewed lines, ink variation. If you cannot find those imperfections, what you see is the question, not an answer.
6. Multi-part questions: check each sub-part; an unanswered sub-part earns no credit.

Score on: correctness (50%), reasoning clarity (30%), completeness (20%).

Return ONLY a JSON object, no markdown fences, no preamble:
{
  "analysis": "plain-text step-by-step analysis",
  "score": <number between 0 and `)
	fmt.Fprintf(&b, "%g>,\n", req.MaxScore)
	b.WriteString(`  "is_correct": <boolean>,
  "comment": "short verdict"
}
`)
	return b.String()
}
