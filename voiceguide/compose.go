// Package voiceguide expands a suggestion into a timed narration script that a
// text-to-speech collaborator can play back segment by segment.
package voiceguide

import (
	"fmt"
	"strings"
	"time"
)

type DetailLevel string

const (
	DetailSimple   DetailLevel = "simple"
	DetailStandard DetailLevel = "standard"
	DetailDetailed DetailLevel = "detailed"
)

// ParseDetailLevel falls back to standard for anything unrecognized.
func ParseDetailLevel(s string) DetailLevel {
	switch DetailLevel(strings.ToLower(strings.TrimSpace(s))) {
	case DetailSimple:
		return DetailSimple
	case DetailDetailed:
		return DetailDetailed
	}
	return DetailStandard
}

type SegmentType string

const (
	SegmentIntro         SegmentType = "intro"
	SegmentMain          SegmentType = "main"
	SegmentTransition    SegmentType = "transition"
	SegmentEncouragement SegmentType = "encouragement"
	SegmentClosing       SegmentType = "closing"
)

type Segment struct {
	ID              string      `json:"id"`
	Type            SegmentType `json:"type"`
	Text            string      `json:"text"`
	Markup          string      `json:"ssml"`
	DurationSeconds int         `json:"duration"`
	StartTime       int         `json:"startTime"`
	AutoPlay        bool        `json:"autoPlay"`
}

func (s Segment) End() int { return s.StartTime + s.DurationSeconds }

type Settings struct {
	PauseBetweenSegments int         `json:"pauseBetweenSegments"`
	DetailLevel          DetailLevel `json:"detailLevel"`
	IncludeEncouragement bool        `json:"includeEncouragement"`
	BreathingCues        bool        `json:"breathingCues"`
}

type Script struct {
	TotalDurationSeconds int       `json:"totalDuration"`
	Segments             []Segment `json:"segments"`
	Settings             Settings  `json:"settings"`
}

// Source is the part of a suggestion the composer narrates.
type Source struct {
	ID              string
	Title           string
	DurationMinutes int
	Steps           []string
	BreathingCues   []string
	Encouragements  []string
}

const (
	bookendSeconds       = 30
	encouragementSeconds = 10
)

var defaultEncouragements = []string{
	"You're doing really well. Keep going at this pace.",
	"Nice and easy. There's no need to rush.",
	"Notice how your body feels right now. Well done.",
}

var fallbackSteps = []string{"Close your eyes and take a few slow, deep breaths."}

// Compose lays out intro, one main segment per step, optional encouragement
// between mains and a closing. Segments are contiguous from 0 and their
// durations sum to DurationMinutes*60. The result depends only on its inputs.
func Compose(src Source, level DetailLevel) Script {
	total := src.DurationMinutes * 60
	if total < 0 {
		total = 0
	}
	steps := cleanSteps(src.Steps)
	if len(steps) == 0 {
		steps = fallbackSteps
	}
	n := len(steps)

	// Very short sessions shrink the bookends so every main segment keeps
	// at least one second.
	bookend := bookendSeconds
	if total < 2*bookend+n {
		bookend = max(0, (total-n)/2)
	}
	remainder := max(0, total-2*bookend)

	withEncouragement := level == DetailDetailed && n > 1 &&
		remainder-encouragementSeconds*(n-1) >= n
	if withEncouragement {
		remainder -= encouragementSeconds * (n - 1)
	}

	base := remainder / n
	encouragements := src.Encouragements
	if len(encouragements) == 0 {
		encouragements = defaultEncouragements
	}

	script := Script{
		TotalDurationSeconds: total,
		Settings: Settings{
			PauseBetweenSegments: pauseFor(level),
			DetailLevel:          level,
			IncludeEncouragement: level != DetailSimple,
			BreathingCues:        len(src.BreathingCues) > 0,
		},
	}

	cursor := 0
	push := func(id string, kind SegmentType, text, markup string, seconds int) {
		script.Segments = append(script.Segments, Segment{
			ID:              id,
			Type:            kind,
			Text:            text,
			Markup:          markup,
			DurationSeconds: seconds,
			StartTime:       cursor,
			AutoPlay:        true,
		})
		cursor += seconds
	}

	introText := fmt.Sprintf("Let's begin %s. Take the next %d minutes slowly and relax.", src.Title, src.DurationMinutes)
	push(src.ID+"_intro", SegmentIntro, introText, introMarkup(src.Title, src.DurationMinutes), bookend)

	for i, step := range steps {
		seconds := base
		if i == n-1 {
			seconds = remainder - base*(n-1)
		}
		cue := ""
		if len(src.BreathingCues) > 0 {
			cue = src.BreathingCues[i%len(src.BreathingCues)]
		}
		text := step
		if cue != "" {
			text = step + " " + cue
		}
		push(fmt.Sprintf("%s_main_%d", src.ID, i), SegmentMain, text, mainMarkup(step, cue), seconds)

		if withEncouragement && i < n-1 {
			text := encouragements[i%len(encouragements)]
			push(fmt.Sprintf("%s_encouragement_%d", src.ID, i), SegmentEncouragement, text, encouragementMarkup(text), encouragementSeconds)
		}
	}

	closingText := "Well done. We hope you feel a little lighter. Come back any time."
	push(src.ID+"_closing", SegmentClosing, closingText, closingMarkup(closingText), bookend)

	return script
}

func pauseFor(level DetailLevel) int {
	if level == DetailDetailed {
		return 2
	}
	return 1
}

func cleanSteps(steps []string) []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func introMarkup(title string, minutes int) string {
	return NewSSMLBuilder().
		Prosody("Let's begin ", Prosody{Rate: "slow"}).
		Emphasis(title, EmphasisModerate).
		Pause(500*time.Millisecond).
		Prosody(fmt.Sprintf("Take the next %d minutes slowly and relax.", minutes), Prosody{Rate: "slow", Pitch: "low"}).
		Pause(2 * time.Second).
		Build()
}

func mainMarkup(step, breathingCue string) string {
	b := NewSSMLBuilder().
		Prosody(step, Prosody{Rate: "slow"}).
		Pause(2 * time.Second)
	if breathingCue != "" {
		b.BreathingCue(breathingCue, 3*time.Second)
	}
	return b.Build()
}

func encouragementMarkup(text string) string {
	return NewSSMLBuilder().
		Prosody(text, Prosody{Rate: "slow", Pitch: "+1st"}).
		Pause(time.Second).
		Build()
}

func closingMarkup(text string) string {
	return NewSSMLBuilder().
		Pause(time.Second).
		Prosody(text, Prosody{Rate: "slow", Volume: "soft"}).
		Build()
}
