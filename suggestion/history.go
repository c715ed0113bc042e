package suggestion

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const historyCap = 20

type HistoryKey struct {
	Situation       Situation
	DurationMinutes int
	Audience        Audience
}

func (k HistoryKey) String() string {
	return fmt.Sprintf("%s_%d_%s", k.Situation, k.DurationMinutes, k.Audience)
}

func KeyFor(r Request) HistoryKey {
	return HistoryKey{Situation: r.Situation, DurationMinutes: r.DurationMinutes, Audience: r.Audience}
}

// History remembers recently emitted titles per request key for the life of
// the process. Each key keeps at most the 20 most recent titles.
type History struct {
	mu      sync.Mutex
	entries map[HistoryKey][]string
	fold    cases.Caser
}

func NewHistory() *History {
	return &History{
		entries: make(map[HistoryKey][]string),
		fold:    cases.Fold(),
	}
}

// Add appends titles, dropping blanks and titles already remembered under the
// same key (compared after NFKC normalization and case folding).
func (h *History) Add(key HistoryKey, titles ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.entries[key]
	for _, title := range titles {
		title = strings.TrimSpace(title)
		if title == "" {
			continue
		}
		canon := h.canonical(title)
		list = slices.DeleteFunc(list, func(existing string) bool {
			return h.canonical(existing) == canon
		})
		list = append(list, title)
	}
	if len(list) > historyCap {
		list = slices.Clone(list[len(list)-historyCap:])
	}
	h.entries[key] = list
}

// Recent returns up to n of the newest titles for key, oldest first.
func (h *History) Recent(key HistoryKey, n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.entries[key]
	if n <= 0 || len(list) == 0 {
		return nil
	}
	if n > len(list) {
		n = len(list)
	}
	return slices.Clone(list[len(list)-n:])
}

func (h *History) Len(key HistoryKey) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries[key])
}

func (h *History) canonical(s string) string {
	return h.fold.String(norm.NFKC.String(s))
}
