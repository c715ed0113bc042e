package prompts

import (
	"fmt"
	"strings"

	"kibarashidev/contextual"
	"kibarashidev/suggestion"
)

type phaseGuidance struct {
	label          string
	considerations []string
}

var jobSeekerPhases = map[string]phaseGuidance{
	"preparation":  {"Preparation (self-analysis and industry research)", []string{"Stay with the doubt that comes with self-analysis", "Help sort out information overload", "Favor reflective activities that deepen self-understanding"}},
	"applying":     {"Applying (writing entry sheets)", []string{"Refresh after long writing sessions", "Ease deadline pressure", "Mind eye strain and screen fatigue"}},
	"interviewing": {"Interviewing", []string{"Calming pre-interview nerves comes first", "Confidence-building affirmations", "Breathing and relaxation techniques"}},
	"waiting":      {"Waiting for results", []string{"Ways to spend anxious waiting time", "Activities that stop overthinking", "Emphasize a change of mood"}},
	"rejected":     {"After a rejection", []string{"Restoring self-worth comes first", "Activities that accept the feelings as they are", "Support moving on to the next step"}},
}

var careerChangerPhases = map[string]phaseGuidance{
	"preparation":  {"Preparation (taking stock of a career)", []string{"Activities that reaffirm the value of their career", "Reflective activities that organize experience", "Picture a future vision"}},
	"applying":     {"Applying (writing a CV)", []string{"Ease the strain of balancing a current job", "Efficient refreshers for limited time", "Help put experience into words"}},
	"interviewing": {"Interviewing", []string{"Activities that sharpen presentation", "Keep the confidence of an experienced professional", "Balance nerves and excitement"}},
	"waiting":      {"Waiting for results or negotiating", []string{"Ease the stress of negotiating terms", "Activities that keep judgment calm", "Consider the family's situation"}},
	"rejected":     {"After a rejection", []string{"Restore professional confidence", "Revisit the value of their experience", "Ease worries about market value"}},
}

var defaultPhase = phaseGuidance{"Job or career search in progress", []string{"Ease stress across the whole search", "Help keep motivation up", "Build self-esteem"}}

var activityDurations = map[string]string{
	"just_started": "Just started (hope and anxiety mixed together)",
	"1-3months":    "1 to 3 months (starting to find a rhythm)",
	"3-6months":    "3 to 6 months (fatigue is setting in, motivation needs care)",
	"over_6months": "Over 6 months (a long search, watch for impatience and exhaustion)",
}

var studentStressFactors = map[string]string{
	"exam":         "exams and tests",
	"report":       "reports and assignments",
	"presentation": "presentations",
	"social":       "relationships",
	"future":       "the future and career paths",
}

func writeJobHunting(b *strings.Builder, in Input, careerChange bool) {
	r := in.Request
	jh := r.JobHunting
	if jh == nil {
		jh = &suggestion.JobHuntingContext{}
	}

	phases := jobSeekerPhases
	if careerChange {
		phases = careerChangerPhases
		b.WriteString("You are a career adviser who deeply understands people changing careers (ages 25 to 49).\n")
		b.WriteString("You understand the strain of searching while still employed and the worries that come with age and experience.\n\n")
	} else {
		b.WriteString("You are a career counsellor supporting young people (ages 20 to 24) on their first job search.\n")
		b.WriteString("You understand the anxiety of a first search and give advice that lifts the mood without adding pressure.\n\n")
	}
	guidance, ok := phases[jh.Phase]
	if !ok {
		guidance = defaultPhase
	}

	b.WriteString("Current situation:\n")
	fmt.Fprintf(b, "- Phase: %s\n", guidance.label)
	fmt.Fprintf(b, "- Where: %s\n", label(situationLabels, r.Situation))
	fmt.Fprintf(b, "- Time available: %d minutes\n", r.DurationMinutes)
	if jh.Concern != "" {
		fmt.Fprintf(b, "- Specific worry: %s\n", jh.Concern)
	}
	if jh.StressFactor != "" {
		fmt.Fprintf(b, "- Source of stress: %s\n", jh.StressFactor)
	}
	if d, ok := activityDurations[jh.ActivityDuration]; ok {
		fmt.Fprintf(b, "- Time spent searching: %s\n", d)
	}

	b.WriteString("\nPay particular attention to:\n")
	for _, c := range guidance.considerations {
		fmt.Fprintf(b, "- %s\n", c)
	}
	if careerChange {
		b.WriteString("- Recognize the value of their accumulated experience and judgment\n")
		b.WriteString("- Keep the tone professional so they keep their confidence\n")
	} else {
		b.WriteString(`- Prefer gentle phrases like "take a breather" over "try harder"` + "\n")
		b.WriteString("- Offer small wins that build self-esteem\n")
	}

	b.WriteString("\nRequirements:\n")
	fmt.Fprintf(b, "1. Concrete activities that finish within %d minutes\n", r.DurationMinutes)
	fmt.Fprintf(b, "2. %s\n", label(situationRequirements, r.Situation))
	b.WriteString("3. Balance cognitive and behavioral activities\n")
	b.WriteString("4. Include something that helps keep motivation for the search\n")
}

func writeStudent(b *strings.Builder, in Input) {
	r := in.Request
	st := r.Student

	b.WriteString("Suggest ways for a student to take a refreshing break.\n\n")
	fmt.Fprintf(b, "Where: %s\n", label(situationLabels, r.Situation))
	concern := st.Concern
	if concern == "" {
		concern = "nothing in particular"
	}
	fmt.Fprintf(b, "Worry: %s\n", concern)
	if st.Subject != "" {
		fmt.Fprintf(b, "Subject: %s\n", st.Subject)
	}
	if desc, ok := studentStressFactors[st.StressFactor]; ok {
		fmt.Fprintf(b, "Source of stress: %s\n", desc)
	} else if st.StressFactor != "" {
		fmt.Fprintf(b, "Source of stress: %s\n", st.StressFactor)
	}
	fmt.Fprintf(b, "Time available: %d minutes\n", r.DurationMinutes)
	fmt.Fprintf(b, "Who: %s\n", label(audienceLabels, r.Audience))

	b.WriteString("\nImportant requirements:\n")
	if st.Concern != "" {
		fmt.Fprintf(b, "- Address the worry %q directly\n", st.Concern)
	}
	b.WriteString("- Keep the barrier low: no special equipment\n")
	b.WriteString("- Include the evidence-based benefit of each activity\n")
	b.WriteString("- Respect a student's limited time and space\n")
	b.WriteString("- End each guide with a tip for getting back to studying\n")
}

var conditionGuidance = map[contextual.Condition]string{
	contextual.Sunny:  "It is sunny, so activities that make use of light and fresh air work well.",
	contextual.Cloudy: "It is cloudy, so favor activities that gently lift the mood.",
	contextual.Rainy:  "It is raining, so favor indoor activities or ones that enjoy the sound of rain.",
	contextual.Snowy:  "It is snowing, so favor warm indoor activities.",
}

var seasonGuidance = map[contextual.Season]string{
	contextual.Spring: "Spring: new beginnings and fresh greenery.",
	contextual.Summer: "Summer: keep cool and stay hydrated.",
	contextual.Autumn: "Autumn: calm reflection and seasonal tastes.",
	contextual.Winter: "Winter: warmth, rest and looking back on the year.",
}

func writeContext(b *strings.Builder, snap contextual.Snapshot) {
	b.WriteString("\nToday's context:\n")
	if w := snap.Weather; w != nil {
		fmt.Fprintf(b, "- Weather in %s: %s, %d°C, humidity %d%%\n", w.Location, w.Description, w.TemperatureC, w.Humidity)
		if g, ok := conditionGuidance[w.Condition]; ok {
			fmt.Fprintf(b, "- %s\n", g)
		}
	}
	s := snap.Seasonal
	if g, ok := seasonGuidance[s.Season]; ok {
		fmt.Fprintf(b, "- %s\n", g)
	}
	if len(s.Events) > 0 {
		fmt.Fprintf(b, "- Seasonal events: %s\n", strings.Join(s.Events, ", "))
	}
	if len(s.Holidays) > 0 {
		fmt.Fprintf(b, "- Holidays around today: %s\n", strings.Join(s.Holidays, ", "))
	}
	if len(s.SpecialPeriods) > 0 {
		fmt.Fprintf(b, "- Special periods: %s\n", strings.Join(s.SpecialPeriods, ", "))
	}
	if len(s.Tips) > 0 {
		fmt.Fprintf(b, "- Seasonal ideas you may draw on: %s\n", strings.Join(s.Tips, "; "))
	}
}
