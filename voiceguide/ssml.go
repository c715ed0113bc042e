package voiceguide

import (
	"fmt"
	"strings"
	"time"
)

var ssmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

type EmphasisLevel string

const (
	EmphasisStrong   EmphasisLevel = "strong"
	EmphasisModerate EmphasisLevel = "moderate"
	EmphasisReduced  EmphasisLevel = "reduced"
)

// Prosody attributes; empty values are omitted.
type Prosody struct {
	Rate   string
	Pitch  string
	Volume string
}

// SSMLBuilder assembles a <speak> document. Text is always escaped.
type SSMLBuilder struct {
	sb strings.Builder
}

func NewSSMLBuilder() *SSMLBuilder {
	b := &SSMLBuilder{}
	b.sb.WriteString("<speak>")
	return b
}

func (b *SSMLBuilder) Text(text string) *SSMLBuilder {
	b.sb.WriteString(EscapeSSML(text))
	return b
}

func (b *SSMLBuilder) Pause(d time.Duration) *SSMLBuilder {
	fmt.Fprintf(&b.sb, `<break time="%dms"/>`, d.Milliseconds())
	return b
}

func (b *SSMLBuilder) Emphasis(text string, level EmphasisLevel) *SSMLBuilder {
	fmt.Fprintf(&b.sb, `<emphasis level="%s">%s</emphasis>`, level, EscapeSSML(text))
	return b
}

func (b *SSMLBuilder) Prosody(text string, p Prosody) *SSMLBuilder {
	var attrs []string
	if p.Rate != "" {
		attrs = append(attrs, fmt.Sprintf(`rate="%s"`, p.Rate))
	}
	if p.Pitch != "" {
		attrs = append(attrs, fmt.Sprintf(`pitch="%s"`, p.Pitch))
	}
	if p.Volume != "" {
		attrs = append(attrs, fmt.Sprintf(`volume="%s"`, p.Volume))
	}
	if len(attrs) == 0 {
		return b.Text(text)
	}
	fmt.Fprintf(&b.sb, `<prosody %s>%s</prosody>`, strings.Join(attrs, " "), EscapeSSML(text))
	return b
}

// BreathingCue is an emphasized instruction followed by a pause to act on it.
func (b *SSMLBuilder) BreathingCue(instruction string, hold time.Duration) *SSMLBuilder {
	return b.Emphasis(instruction, EmphasisModerate).Pause(hold)
}

func (b *SSMLBuilder) Build() string {
	return b.sb.String() + "</speak>"
}

func EscapeSSML(text string) string {
	return ssmlEscaper.Replace(text)
}
