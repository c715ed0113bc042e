package suggestion

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var ErrParse = errors.New("could not parse model response")

var (
	fencedBlock   = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// payload is the shape the model answered with, resolved before conversion.
type payload interface {
	items() []rawSuggestion
}

type singleObject struct {
	item rawSuggestion
}

func (p singleObject) items() []rawSuggestion { return []rawSuggestion{p.item} }

type objectArray struct {
	list []rawSuggestion
}

func (p objectArray) items() []rawSuggestion { return p.list }

type rawSuggestion struct {
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	Category            string     `json:"category"`
	Steps               stepList   `json:"steps"`
	Guide               string     `json:"guide"`
	Duration            flexNumber `json:"duration"`
	DisplaySteps        stepList   `json:"displaySteps"`
	DisplayGuide        string     `json:"displayGuide"`
	DetailedSteps       stepList   `json:"detailedSteps"`
	EncouragementPhases stepList   `json:"encouragementPhases"`
	BreathingCues       stepList   `json:"breathingInstructions"`
}

// stepList accepts ["a", "b"] as well as [{"instruction": "a"}].
type stepList []string

func (s *stepList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		var single string
		if err2 := json.Unmarshal(data, &single); err2 == nil {
			*s = stepList{single}
			return nil
		}
		return err
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		var str string
		if err := json.Unmarshal(r, &str); err == nil {
			if strings.TrimSpace(str) != "" {
				out = append(out, str)
			}
			continue
		}
		var obj struct {
			Instruction string `json:"instruction"`
			Text        string `json:"text"`
		}
		if err := json.Unmarshal(r, &obj); err == nil {
			if obj.Instruction != "" {
				out = append(out, obj.Instruction)
			} else if obj.Text != "" {
				out = append(out, obj.Text)
			}
		}
	}
	*s = out
	return nil
}

// flexNumber tolerates 5, 5.0 and "5".
type flexNumber int

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	s := strings.Trim(string(data), `"`)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	*n = flexNumber(int(f))
	return nil
}

// ParseResponse turns raw model text into suggestions. Prose around the JSON,
// code fences and trailing commas are tolerated. Each item gets a fresh id and
// inherits defaultDuration when it carries none.
func ParseResponse(text string, defaultDuration int) ([]Suggestion, error) {
	p, err := decodePayload(text)
	if err != nil {
		return nil, err
	}
	raws := p.items()
	if len(raws) == 0 {
		return nil, fmt.Errorf("%w: empty suggestion list", ErrParse)
	}

	out := make([]Suggestion, 0, len(raws))
	for _, r := range raws {
		out = append(out, r.toSuggestion(defaultDuration))
	}
	return out, nil
}

func decodePayload(text string) (payload, error) {
	body := strings.TrimSpace(text)
	if m := fencedBlock.FindStringSubmatch(body); m != nil {
		body = strings.TrimSpace(m[1])
	}
	if body == "" {
		return nil, fmt.Errorf("%w: empty response", ErrParse)
	}

	if strings.HasPrefix(body, "{") {
		return decodeObject(body)
	}

	span, ok := matchingSpan(body, '[', ']')
	if !ok {
		return nil, fmt.Errorf("%w: no JSON array found", ErrParse)
	}
	var list []rawSuggestion
	if err := json.Unmarshal([]byte(repairJSON(span)), &list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return objectArray{list: list}, nil
}

func decodeObject(body string) (payload, error) {
	span, ok := matchingSpan(body, '{', '}')
	if !ok {
		return nil, fmt.Errorf("%w: unterminated object", ErrParse)
	}
	repaired := []byte(repairJSON(span))

	// The contextual prompt asks for {"suggestions": [...]}.
	var wrapper struct {
		Suggestions []rawSuggestion `json:"suggestions"`
	}
	if err := json.Unmarshal(repaired, &wrapper); err == nil && wrapper.Suggestions != nil {
		return objectArray{list: wrapper.Suggestions}, nil
	}

	var item rawSuggestion
	if err := json.Unmarshal(repaired, &item); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if strings.TrimSpace(item.Title) == "" {
		return nil, fmt.Errorf("%w: object has no title", ErrParse)
	}
	return singleObject{item: item}, nil
}

func repairJSON(s string) string {
	return trailingComma.ReplaceAllString(s, "$1")
}

// matchingSpan returns the text from the first open bracket up to its
// matching close bracket, skipping brackets inside JSON strings.
func matchingSpan(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func (r rawSuggestion) toSuggestion(defaultDuration int) Suggestion {
	category, _ := ParseCategory(r.Category)
	duration := int(r.Duration)
	if duration <= 0 {
		duration = defaultDuration
	}
	title := strings.TrimSpace(r.Title)
	if title == "" {
		title = "A short break"
	}
	steps := []string(r.Steps)
	if len(steps) == 0 {
		steps = r.DisplaySteps
	}
	guide := r.Guide
	if guide == "" {
		guide = r.DisplayGuide
	}
	return Suggestion{
		ID:                  "gemini-" + uuid.NewString(),
		Title:               title,
		Description:         strings.TrimSpace(r.Description),
		DurationMinutes:     duration,
		Category:            category,
		Steps:               steps,
		Guide:               guide,
		DetailedSteps:       r.DetailedSteps,
		EncouragementPhases: r.EncouragementPhases,
		BreathingCues:       r.BreathingCues,
		DisplaySteps:        r.DisplaySteps,
		DisplayGuide:        r.DisplayGuide,
	}
}
