package prompts

import (
	"fmt"
	"strings"
	"testing"

	"kibarashidev/contextual"
	"kibarashidev/suggestion"

	"github.com/stretchr/testify/assert"
)

func TestChooseVariant(t *testing.T) {
	snap := &contextual.Snapshot{}
	cases := []struct {
		name string
		in   Input
		want Variant
	}{
		{"general", Input{Request: suggestion.Request{Situation: suggestion.SituationHome}}, VariantGeneral},
		{"contextual", Input{Request: suggestion.Request{Situation: suggestion.SituationHome}, Snapshot: snap}, VariantContextual},
		{"student override beats context", Input{Request: suggestion.Request{Situation: suggestion.SituationStudying, Student: &suggestion.StudentContext{}}, Snapshot: snap}, VariantStudent},
		{"job seeker audience", Input{Request: suggestion.Request{Situation: suggestion.SituationHome, Audience: suggestion.AudienceJobSeeker}}, VariantJobSeeker},
		{"job hunting situation", Input{Request: suggestion.Request{Situation: suggestion.SituationJobHunting}}, VariantJobSeeker},
		{"career changer", Input{Request: suggestion.Request{Situation: suggestion.SituationHome, Audience: suggestion.AudienceCareerChanger, JobHunting: &suggestion.JobHuntingContext{}}}, VariantCareerChanger},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Choose(c.in))
		})
	}
}

func TestBuildGeneral(t *testing.T) {
	p := Build(Input{Request: suggestion.Request{Situation: suggestion.SituationWorkplace, DurationMinutes: 15, Audience: suggestion.AudienceElderly}})

	assert.Contains(t, p, "at work")
	assert.Contains(t, p, "15 minutes")
	assert.Contains(t, p, "older adults")
	assert.Contains(t, p, "first-time user")
	assert.Contains(t, p, `"duration": 15`)
	assert.Contains(t, p, "JSON array")
}

func TestBuildHistoryUsesLastFive(t *testing.T) {
	var history []string
	for i := 1; i <= 8; i++ {
		history = append(history, fmt.Sprintf("idea %d", i))
	}
	p := Build(Input{Request: suggestion.Request{Situation: suggestion.SituationHome, DurationMinutes: 5}, History: history})

	assert.NotContains(t, p, "idea 3\n")
	for i := 4; i <= 8; i++ {
		assert.Contains(t, p, fmt.Sprintf("- idea %d\n", i))
	}
	assert.NotContains(t, p, "first-time user")
}

func TestBuildContextual(t *testing.T) {
	snap := &contextual.Snapshot{
		Weather: &contextual.WeatherFacts{TemperatureC: 12, Condition: contextual.Rainy, Description: "light rain", Humidity: 80, Location: "Tokyo"},
		Seasonal: contextual.SeasonalFacts{
			Season:         contextual.Autumn,
			Events:         []string{"autumn leaves season"},
			Holidays:       []string{"Sports Day"},
			SpecialPeriods: []string{},
			Tips:           []string{"Slow down with a good book"},
		},
	}
	p := Build(Input{Request: suggestion.Request{Situation: suggestion.SituationOutside, DurationMinutes: 30}, Snapshot: snap})

	assert.Contains(t, p, "Weather in Tokyo: light rain, 12°C, humidity 80%")
	assert.Contains(t, p, "It is raining")
	assert.Contains(t, p, "Autumn")
	assert.Contains(t, p, "Sports Day")
	assert.Contains(t, p, "Slow down with a good book")
	assert.Contains(t, p, `"suggestions"`)
}

func TestBuildContextualWithoutWeather(t *testing.T) {
	snap := &contextual.Snapshot{Seasonal: contextual.SeasonalFacts{Season: contextual.Winter}}
	p := Build(Input{Request: suggestion.Request{Situation: suggestion.SituationHome, DurationMinutes: 5}, Snapshot: snap})

	assert.NotContains(t, p, "Weather in")
	assert.Contains(t, p, "Winter")
}

func TestBuildStudent(t *testing.T) {
	p := Build(Input{Request: suggestion.Request{
		Situation:       suggestion.SituationStudying,
		DurationMinutes: 5,
		Audience:        suggestion.AudienceStudent,
		Student:         &suggestion.StudentContext{Concern: "can't focus", Subject: "math", StressFactor: "exam"},
	}})

	assert.Contains(t, p, `"can't focus"`)
	assert.Contains(t, p, "Subject: math")
	assert.Contains(t, p, "exams and tests")
	assert.Contains(t, p, "getting back to studying")
}

func TestBuildJobHunting(t *testing.T) {
	seeker := Build(Input{Request: suggestion.Request{
		Situation:       suggestion.SituationHome,
		DurationMinutes: 15,
		Audience:        suggestion.AudienceJobSeeker,
		JobHunting:      &suggestion.JobHuntingContext{Phase: "interviewing", ActivityDuration: "over_6months", Concern: "nerves"},
	}})
	assert.Contains(t, seeker, "ages 20 to 24")
	assert.Contains(t, seeker, "Phase: Interviewing")
	assert.Contains(t, seeker, "Calming pre-interview nerves")
	assert.Contains(t, seeker, "Over 6 months")
	assert.Contains(t, seeker, "Specific worry: nerves")

	changer := Build(Input{Request: suggestion.Request{
		Situation:       suggestion.SituationWorkplace,
		DurationMinutes: 5,
		Audience:        suggestion.AudienceCareerChanger,
	}})
	assert.Contains(t, changer, "ages 25 to 49")
	assert.Contains(t, changer, "Job or career search in progress")
}

func TestBuildEnhancedAndFreeText(t *testing.T) {
	p := Build(Input{
		Request:  suggestion.Request{Situation: suggestion.SituationHome, DurationMinutes: 5, FreeTextContext: "  long day  "},
		Enhanced: true,
	})
	assert.Contains(t, p, `"long day"`)
	assert.Contains(t, p, "detailedSteps")
	assert.Contains(t, p, "displayGuide")
	assert.Equal(t, 1, strings.Count(p, "Return exactly 3 suggestions"))
}
