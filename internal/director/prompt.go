package director

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"clipforge/internal/domain"
)

var sentenceCaser = cases.Title(language.Und, cases.NoLower)

// normalizeFreeText fixes ALL-CAPS or all-lowercase user input into title
// case before it reaches a prompt, so a model sees consistent-looking input
// regardless of how the project form was filled in. Mixed-case text (most
// genuine prose) passes through untouched.
func normalizeFreeText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	if s == strings.ToUpper(s) || s == strings.ToLower(s) {
		return sentenceCaser.String(strings.ToLower(s))
	}
	return s
}

const planJSONSchema = `{"title":string,"narrative":string,"totalDuration":number,"scenes":[{"id":number,"name":string,"description":string,"mood":string,"shots":[{"id":number,"duration":number,"startPrompt":string,"endPrompt":string,"motionPrompt":string,"cameraMove":string,"lighting":string,"colorPalette":string,"transitionOut":string}]}]}`

func buildSystemPrompt(constraints domain.Constraints) string {
	sb := &strings.Builder{}
	sb.WriteString("You are a cinematography director decomposing a concept into a structured shot plan. ")
	sb.WriteString("Respond strictly with JSON matching this schema: ")
	sb.WriteString(planJSONSchema)
	sb.WriteString(". Rules: ")
	fmt.Fprintf(sb, "each shot duration must be between %.1f and %.1f seconds; ", domain.MinShotDuration, domain.MaxShotDuration)
	sb.WriteString("the sum of all shot durations must land within 10 percent of the requested target duration; ")
	fmt.Fprintf(sb, "each of startPrompt, endPrompt, and motionPrompt must contain at least %d whitespace-separated words; ", domain.MinPromptTokens)
	sb.WriteString("cameraMove must be one of: static, push_in, pull_out, pan_left, pan_right, tilt_up, tilt_down, crane_up, crane_down, dolly_left, dolly_right; ")
	sb.WriteString("transitionOut, if present, must be one of: cut, crossfade, fade_black, fade_white, wipe_left, wipe_right; ")
	sb.WriteString("scene ids must be sequential starting at 1, and shot ids must be sequential starting at 1 within each scene; ")
	sb.WriteString("the endPrompt of shot N must read as the visual premise that shot N+1's startPrompt continues, so consecutive shots flow as one continuous sequence.")
	if constraints.MaxScenes > 0 {
		fmt.Fprintf(sb, " Use no more than %d scenes.", constraints.MaxScenes)
	}
	if constraints.MaxShotsPerScene > 0 {
		fmt.Fprintf(sb, " Use no more than %d shots per scene.", constraints.MaxShotsPerScene)
	}
	return sb.String()
}

func buildUserPrompt(concept string, targetDuration float64, aspectRatio, style string, constraints domain.Constraints) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "Concept: %s\n", normalizeFreeText(concept))
	fmt.Fprintf(sb, "Target duration: %s seconds\n", strconv.FormatFloat(targetDuration, 'f', 1, 64))
	fmt.Fprintf(sb, "Aspect ratio: %s\n", aspectRatio)
	if style != "" {
		fmt.Fprintf(sb, "Style: %s\n", normalizeFreeText(style))
	}
	if len(constraints.Include) > 0 {
		fmt.Fprintf(sb, "Must include: %s\n", strings.Join(constraints.Include, ", "))
	}
	if len(constraints.Avoid) > 0 {
		fmt.Fprintf(sb, "Must avoid: %s\n", strings.Join(constraints.Avoid, ", "))
	}
	return sb.String()
}

func buildRefinePrompt(existing *domain.Plan, feedback string) string {
	sb := &strings.Builder{}
	sb.WriteString("Revise the following shot plan according to the feedback below. Keep the same overall pacing unless the feedback asks otherwise.\n")
	fmt.Fprintf(sb, "Prior total duration: %s seconds\n", strconv.FormatFloat(existing.TotalDuration, 'f', 1, 64))
	fmt.Fprintf(sb, "Prior plan title: %s\n", existing.Title)
	fmt.Fprintf(sb, "Prior plan narrative: %s\n", existing.Narrative)
	fmt.Fprintf(sb, "Feedback: %s\n", normalizeFreeText(feedback))
	return sb.String()
}

// extractJSONFragment strips a Markdown code fence and any leading/trailing
// prose a text model adds around its JSON response, so a well-formed but
// decorated response is not misclassified as malformed. Mirrors the
// fence-stripping helper used by the prompt-enhancement providers.
func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
