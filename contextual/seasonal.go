package contextual

import (
	"time"
)

type Season string

const (
	Spring Season = "spring"
	Summer Season = "summer"
	Autumn Season = "autumn"
	Winter Season = "winter"
)

type SeasonalFacts struct {
	Season         Season   `json:"season"`
	Month          int      `json:"month"`
	Events         []string `json:"seasonalEvents"`
	Holidays       []string `json:"holidays"`
	SpecialPeriods []string `json:"specialPeriods"`
	Tips           []string `json:"seasonalTips"`
}

type dated struct {
	month time.Month
	day   int
	name  string
}

// Some of these move year to year; the usual date is close enough for a
// two-day window.
var holidays = []dated{
	{time.January, 1, "New Year's Day"},
	{time.January, 15, "Coming of Age Day"},
	{time.February, 11, "National Foundation Day"},
	{time.February, 23, "Emperor's Birthday"},
	{time.March, 20, "Vernal Equinox Day"},
	{time.April, 29, "Showa Day"},
	{time.May, 3, "Constitution Memorial Day"},
	{time.May, 4, "Greenery Day"},
	{time.May, 5, "Children's Day"},
	{time.July, 20, "Marine Day"},
	{time.August, 11, "Mountain Day"},
	{time.September, 21, "Respect for the Aged Day"},
	{time.September, 23, "Autumnal Equinox Day"},
	{time.October, 12, "Sports Day"},
	{time.November, 3, "Culture Day"},
	{time.November, 23, "Labour Thanksgiving Day"},
	{time.December, 25, "Christmas"},
}

type ranged struct {
	month    time.Month
	from, to int
	name     string
}

var seasonalEvents = []ranged{
	{time.March, 20, 31, "cherry blossoms opening"},
	{time.April, 1, 30, "new school and fiscal year"},
	{time.April, 1, 15, "hanami season"},
	{time.May, 1, 5, "Golden Week"},
	{time.June, 10, 20, "start of the rainy season"},
	{time.July, 1, 31, "Tanabata and summer festivals"},
	{time.August, 1, 31, "summer holidays and Obon"},
	{time.August, 13, 16, "Obon break"},
	{time.September, 1, 30, "first autumn leaves"},
	{time.October, 1, 31, "autumn leaves season"},
	{time.November, 1, 30, "autumn harvest flavours"},
	{time.December, 1, 31, "year end and Christmas"},
	{time.December, 25, 31, "preparing for the new year"},
	{time.January, 1, 7, "New Year celebrations"},
	{time.February, 1, 14, "Setsubun and Valentine's Day"},
}

var seasonTips = map[Season][]string{
	Spring: {"Take photos of blossoms and flowers", "Breathe deeply among the fresh greenery", "A good season to start something new"},
	Summer: {"Listen to cool, calming music", "Refresh with a cold drink", "Look back on summer memories"},
	Autumn: {"Look at photos of autumn leaves", "Slow down with a good book", "Enjoy seasonal autumn food"},
	Winter: {"Enjoy snowy or wintry scenery", "Warm up with a hot drink", "Relax somewhere warm and cosy"},
}

var monthTips = map[time.Month][]string{
	time.January:  {"Think about your hopes for the new year"},
	time.February: {"Write a thank-you message to someone important"},
	time.March:    {"Look for a new skill or hobby to try"},
	time.April:    {"Set a goal for the new fiscal year"},
	time.June:     {"Relax to the sound of the rain"},
	time.July:     {"Think of a Tanabata wish"},
	time.October:  {"Get moving with some exercise or sport"},
	time.November: {"Look back on the year so far"},
	time.December: {"Tidy up before the year ends", "Recall three good things from this year"},
}

// Seasonal derives calendar facts for t. It is pure and uses t's location.
func Seasonal(t time.Time) SeasonalFacts {
	month, day := t.Month(), t.Day()
	season := seasonOf(month, day)

	facts := SeasonalFacts{
		Season:         season,
		Month:          int(month),
		Events:         []string{},
		Holidays:       []string{},
		SpecialPeriods: specialPeriods(month, day),
	}
	for _, h := range holidays {
		if h.month == month && abs(h.day-day) <= 2 {
			facts.Holidays = append(facts.Holidays, h.name)
		}
	}
	for _, e := range seasonalEvents {
		if e.month == month && day >= e.from && day <= e.to {
			facts.Events = append(facts.Events, e.name)
		}
	}
	facts.Tips = append(facts.Tips, seasonTips[season]...)
	facts.Tips = append(facts.Tips, monthTips[month]...)
	return facts
}

func seasonOf(month time.Month, day int) Season {
	switch {
	case (month == time.March && day >= 20) || month == time.April || month == time.May || (month == time.June && day < 21):
		return Spring
	case (month == time.June && day >= 21) || month == time.July || month == time.August || (month == time.September && day < 23):
		return Summer
	case (month == time.September && day >= 23) || month == time.October || month == time.November || (month == time.December && day < 22):
		return Autumn
	}
	return Winter
}

func specialPeriods(month time.Month, day int) []string {
	periods := []string{}
	if (month == time.December && day >= 29) || (month == time.January && day <= 3) {
		periods = append(periods, "New Year holidays")
	}
	if (month == time.April && day >= 29) || (month == time.May && day <= 5) {
		periods = append(periods, "Golden Week")
	}
	if month == time.August && day >= 13 && day <= 16 {
		periods = append(periods, "Obon")
	}
	if (month == time.July && day >= 20) || month == time.August || (month == time.September && day <= 1) {
		periods = append(periods, "summer holidays")
	}
	return periods
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
