// Package prompts turns a suggestion request into the instruction text sent
// to the model. Everything here is pure.
package prompts

import (
	"fmt"
	"strings"

	"kibarashidev/contextual"
	"kibarashidev/suggestion"
)

// HistoryWindow is how many recent titles are quoted back to the model.
const HistoryWindow = 5

type Variant string

const (
	VariantGeneral       Variant = "general"
	VariantContextual    Variant = "contextual"
	VariantStudent       Variant = "student"
	VariantJobSeeker     Variant = "job_seeker"
	VariantCareerChanger Variant = "career_changer"
)

// Input is everything a prompt can draw on. Snapshot and History are optional.
type Input struct {
	Request  suggestion.Request
	Snapshot *contextual.Snapshot
	History  []string
	Enhanced bool
}

var situationLabels = map[suggestion.Situation]string{
	suggestion.SituationWorkplace:  "at work",
	suggestion.SituationHome:       "at home",
	suggestion.SituationOutside:    "out and about",
	suggestion.SituationStudying:   "in the middle of studying",
	suggestion.SituationSchool:     "at school or university",
	suggestion.SituationCommuting:  "commuting by train or bus",
	suggestion.SituationJobHunting: "in the middle of a job search",
}

var situationRequirements = map[suggestion.Situation]string{
	suggestion.SituationWorkplace:  "Can be done discreetly at work, with an easy return to the task at hand",
	suggestion.SituationHome:       "Can be done while relaxing at home",
	suggestion.SituationOutside:    "Works in public places, even while on the move",
	suggestion.SituationStudying:   "Fits between study blocks and makes it easy to resume studying",
	suggestion.SituationSchool:     "Can be done at school between classes without drawing attention",
	suggestion.SituationCommuting:  "Can be done quietly on a train or bus",
	suggestion.SituationJobHunting: "Can be done anywhere, including right before an interview",
}

var audienceLabels = map[suggestion.Audience]string{
	suggestion.AudienceDefault:       "working adults in their 20s to 40s",
	suggestion.AudienceOfficeWorker:  "working adults in their 20s to 40s",
	suggestion.AudienceStudent:       "students aged 16 to 22",
	suggestion.AudienceMiddleSchool:  "middle school students",
	suggestion.AudienceHousewife:     "people managing a household",
	suggestion.AudienceElderly:       "older adults",
	suggestion.AudienceJobSeeker:     "job seekers",
	suggestion.AudienceCareerChanger: "people changing careers",
}

// Choose picks the variant for in. Audience-specific contexts win over
// weather and seasonal enrichment.
func Choose(in Input) Variant {
	r := in.Request
	switch {
	case r.Audience == suggestion.AudienceCareerChanger:
		return VariantCareerChanger
	case r.Audience == suggestion.AudienceJobSeeker, r.JobHunting != nil, r.Situation == suggestion.SituationJobHunting:
		return VariantJobSeeker
	case r.Student != nil:
		return VariantStudent
	case in.Snapshot != nil:
		return VariantContextual
	}
	return VariantGeneral
}

// Build renders the prompt for in.
func Build(in Input) string {
	var b strings.Builder

	switch Choose(in) {
	case VariantCareerChanger:
		writeJobHunting(&b, in, true)
	case VariantJobSeeker:
		writeJobHunting(&b, in, false)
	case VariantStudent:
		writeStudent(&b, in)
	case VariantContextual:
		writeGeneral(&b, in)
		writeContext(&b, *in.Snapshot)
	default:
		writeGeneral(&b, in)
	}

	if ctx := strings.TrimSpace(in.Request.FreeTextContext); ctx != "" {
		fmt.Fprintf(&b, "\nWhat the user told us about their situation: %q\n", ctx)
	}
	writeHistory(&b, in.History)

	switch {
	case in.Enhanced:
		fmt.Fprintf(&b, ENHANCED_FORMAT, in.Request.DurationMinutes)
	case Choose(in) == VariantContextual:
		fmt.Fprintf(&b, OBJECT_FORMAT, in.Request.DurationMinutes)
	default:
		fmt.Fprintf(&b, ARRAY_FORMAT, in.Request.DurationMinutes)
	}
	return b.String()
}

func writeGeneral(b *strings.Builder, in Input) {
	r := in.Request
	b.WriteString("Suggest 3 practical, effective ways to take a short mental break.\n\n")
	b.WriteString("Conditions:\n")
	fmt.Fprintf(b, "- Where: %s\n", label(situationLabels, r.Situation))
	fmt.Fprintf(b, "- Time available: %d minutes\n", r.DurationMinutes)
	fmt.Fprintf(b, "- Who: %s\n", label(audienceLabels, r.Audience))
	b.WriteString("\nGuidelines:\n")
	b.WriteString("1. Mix cognitive and behavioral activities\n")
	fmt.Fprintf(b, "2. Each one must be realistic to finish in %d minutes\n", r.DurationMinutes)
	fmt.Fprintf(b, "3. %s\n", label(situationRequirements, r.Situation))
	b.WriteString("4. Prefer activities with evidence of reducing stress\n")
}

func label[K comparable](m map[K]string, k K) string {
	if v, ok := m[k]; ok {
		return v
	}
	return fmt.Sprint(k)
}

func writeHistory(b *strings.Builder, history []string) {
	if len(history) == 0 {
		b.WriteString("\nThis is a first-time user for this situation, so classic, reliable ideas are welcome.\n")
		return
	}
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}
	b.WriteString("\nThe user has recently seen these suggestions. Offer something different:\n")
	for _, t := range history {
		fmt.Fprintf(b, "- %s\n", t)
	}
}
