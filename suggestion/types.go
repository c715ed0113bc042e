// Package suggestion holds the request and result types of the suggestion
// pipeline, together with request validation, model-response parsing and the
// per-key title history used to steer prompts away from repeats.
package suggestion

import (
	"slices"
	"strings"

	"kibarashidev/voiceguide"
)

type Situation string

const (
	SituationWorkplace  Situation = "workplace"
	SituationHome       Situation = "home"
	SituationOutside    Situation = "outside"
	SituationStudying   Situation = "studying"
	SituationSchool     Situation = "school"
	SituationCommuting  Situation = "commuting"
	SituationJobHunting Situation = "job_hunting"
)

var Situations = []Situation{
	SituationWorkplace,
	SituationHome,
	SituationOutside,
	SituationStudying,
	SituationSchool,
	SituationCommuting,
	SituationJobHunting,
}

func (s Situation) Valid() bool {
	return slices.Contains(Situations, s)
}

type Audience string

const (
	AudienceDefault       Audience = ""
	AudienceOfficeWorker  Audience = "office_worker"
	AudienceStudent       Audience = "student"
	AudienceMiddleSchool  Audience = "middle_school"
	AudienceHousewife     Audience = "housewife"
	AudienceElderly       Audience = "elderly"
	AudienceJobSeeker     Audience = "job_seeker"
	AudienceCareerChanger Audience = "career_changer"
)

var audiences = []Audience{
	AudienceOfficeWorker,
	AudienceStudent,
	AudienceMiddleSchool,
	AudienceHousewife,
	AudienceElderly,
	AudienceJobSeeker,
	AudienceCareerChanger,
}

// ParseAudience maps a free string onto a known segment. Unknown values fall
// back to the default audience instead of failing the request.
func ParseAudience(s string) Audience {
	a := Audience(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(audiences, a) {
		return a
	}
	return AudienceDefault
}

// IsJobHunting reports whether the segment draws from the job-hunting tables.
func (a Audience) IsJobHunting() bool {
	return a == AudienceJobSeeker || a == AudienceCareerChanger
}

type Category string

const (
	CategoryCognitive  Category = "cognitive"
	CategoryBehavioral Category = "behavioral"
)

// ParseCategory accepts the English labels and the localized labels the
// model sometimes answers with.
func ParseCategory(s string) (Category, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case v == "cognitive" || v == "認知的":
		return CategoryCognitive, true
	case v == "behavioral" || v == "behavioural" || v == "行動的":
		return CategoryBehavioral, true
	case strings.Contains(v, "behav") || strings.Contains(v, "行動"):
		return CategoryBehavioral, true
	case strings.Contains(v, "cogn") || strings.Contains(v, "認知"):
		return CategoryCognitive, true
	}
	return CategoryCognitive, false
}

type StudentContext struct {
	Concern      string `json:"concern,omitempty"`
	Subject      string `json:"subject,omitempty"`
	StressFactor string `json:"stressFactor,omitempty"`
}

type JobHuntingContext struct {
	Phase            string `json:"phase,omitempty"`
	Concern          string `json:"concern,omitempty"`
	StressFactor     string `json:"stressFactor,omitempty"`
	ActivityDuration string `json:"activityDuration,omitempty"`
}

type Request struct {
	Situation       Situation
	DurationMinutes int
	Audience        Audience
	FreeTextContext string
	// EnrichContext asks for weather and seasonal facts in the prompt.
	EnrichContext bool
	Student       *StudentContext
	JobHunting    *JobHuntingContext
}

// HasOverrideContext reports whether an audience-specific context was supplied.
func (r Request) HasOverrideContext() bool {
	return r.Student != nil || r.JobHunting != nil
}

type Suggestion struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	DurationMinutes int      `json:"duration"`
	Category        Category `json:"category"`
	Steps           []string `json:"steps,omitempty"`
	Guide           string   `json:"guide,omitempty"`

	// Narration-oriented fields, only filled by the enhanced prompt.
	DetailedSteps       []string `json:"-"`
	EncouragementPhases []string `json:"-"`
	BreathingCues       []string `json:"-"`
	DisplaySteps        []string `json:"-"`
	DisplayGuide        string   `json:"-"`
}

type AccessibilityFlags struct {
	HasSubtitles          bool `json:"hasSubtitles"`
	KeyboardNavigable     bool `json:"keyboardNavigable"`
	ScreenReaderOptimized bool `json:"screenReaderOptimized"`
}

type EnhancedSuggestion struct {
	Suggestion
	DisplaySteps     []string           `json:"displaySteps"`
	DisplayGuide     string             `json:"displayGuide"`
	VoiceGuideScript *voiceguide.Script `json:"voiceGuideScript,omitempty"`
	Accessibility    AccessibilityFlags `json:"accessibility"`
}

var defaultDisplaySteps = []string{
	"Find a comfortable spot",
	"Settle your breathing",
	"Notice how you feel afterwards",
}

const defaultDisplayGuide = "Go at a gentle pace and take it one step at a time."

// Enhance builds the display form of s. Display steps and guide are always
// populated, falling back to the plain steps/guide and then to generic text.
func Enhance(s Suggestion) EnhancedSuggestion {
	steps := firstNonEmpty(s.DisplaySteps, s.Steps, defaultDisplaySteps)
	guide := s.DisplayGuide
	if strings.TrimSpace(guide) == "" {
		guide = s.Guide
	}
	if strings.TrimSpace(guide) == "" {
		guide = defaultDisplayGuide
	}
	return EnhancedSuggestion{
		Suggestion:   s,
		DisplaySteps: slices.Clone(steps),
		DisplayGuide: guide,
		Accessibility: AccessibilityFlags{
			HasSubtitles:          true,
			KeyboardNavigable:     true,
			ScreenReaderOptimized: true,
		},
	}
}

// NarrationSteps returns the step texts a voice script should read out.
func (s Suggestion) NarrationSteps() []string {
	return firstNonEmpty(s.DetailedSteps, s.DisplaySteps, s.Steps)
}

func firstNonEmpty(lists ...[]string) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}
