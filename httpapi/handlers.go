package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"kibarashidev/suggestion"
	"kibarashidev/voiceguide"

	"go.uber.org/zap"
)

const maxFreeTextRunes = 500

func (h *handlers) getSuggestions(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}

	items, err := h.suggestions.GenerateSuggestions(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeSuccess(w, map[string]any{
		"suggestions": items,
		"metadata":    h.metadata(req),
	})
}

func (h *handlers) getEnhancedSuggestions(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	q := r.URL.Query()
	level := voiceguide.ParseDetailLevel(q.Get("detailLevel"))
	includeVoice, err := parseBool(q.Get("voice"), false)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "voice must be true or false")
		return
	}

	items, err := h.suggestions.GenerateEnhancedSuggestions(r.Context(), req, level, includeVoice)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	meta := h.metadata(req)
	meta["detailLevel"] = level
	meta["voiceGuide"] = includeVoice
	w.Header().Set("Cache-Control", "no-store")
	writeSuccess(w, map[string]any{
		"suggestions": items,
		"metadata":    meta,
	})
}

func (h *handlers) getContext(w http.ResponseWriter, r *http.Request) {
	snap, err := h.contextSource.Snapshot(r.Context())
	if err != nil {
		h.logger.Logger(r.Context()).Warn("[HTTP] Context snapshot failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "CONTEXT_UNAVAILABLE", "context is temporarily unavailable")
		return
	}
	writeSuccess(w, snap)
}

func (h *handlers) getKeyStats(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, h.suggestions.KeyPoolStats())
}

func (h *handlers) rotateKey(w http.ResponseWriter, r *http.Request) {
	index := h.suggestions.ForceKeyRotation(r.Context())
	writeSuccess(w, map[string]int{"currentIndex": index})
}

func (h *handlers) resetCooldowns(w http.ResponseWriter, r *http.Request) {
	h.suggestions.ResetAllCooldowns(r.Context())
	writeSuccess(w, h.suggestions.KeyPoolStats())
}

func (h *handlers) metadata(req suggestion.Request) map[string]any {
	return map[string]any{
		"situation": req.Situation,
		"duration":  req.DurationMinutes,
		"audience":  req.Audience,
		"timestamp": h.now().UTC(),
	}
}

func (h *handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *suggestion.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", verr.Error())
		return
	}
	h.logger.Logger(r.Context()).Error("[HTTP] Suggestion generation failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not generate suggestions")
}

// parseRequest reads the query string. Range checks on situation and
// duration are left to the pipeline's own validation.
func parseRequest(r *http.Request) (suggestion.Request, error) {
	q := r.URL.Query()
	var req suggestion.Request

	situation := strings.TrimSpace(q.Get("situation"))
	if situation == "" {
		return req, errors.New("situation is required")
	}
	req.Situation = suggestion.Situation(situation)

	raw := strings.TrimSpace(q.Get("duration"))
	if raw == "" {
		return req, errors.New("duration is required")
	}
	duration, err := strconv.Atoi(raw)
	if err != nil {
		return req, errors.New("duration must be a whole number of minutes")
	}
	req.DurationMinutes = duration

	req.Audience = suggestion.ParseAudience(q.Get("ageGroup"))

	freeText := strings.TrimSpace(q.Get("context"))
	if utf8.RuneCountInString(freeText) > maxFreeTextRunes {
		return req, errors.New("context is too long")
	}
	req.FreeTextContext = freeText

	if req.EnrichContext, err = parseBool(q.Get("enrich"), false); err != nil {
		return req, errors.New("enrich must be true or false")
	}

	if req.Audience == suggestion.AudienceStudent {
		student := suggestion.StudentContext{
			Concern:      strings.TrimSpace(q.Get("studentConcern")),
			Subject:      strings.TrimSpace(q.Get("studentSubject")),
			StressFactor: strings.TrimSpace(q.Get("studentStressFactor")),
		}
		if student != (suggestion.StudentContext{}) {
			req.Student = &student
		}
	}

	jobHunting := suggestion.JobHuntingContext{
		Phase:            strings.TrimSpace(q.Get("jobHuntingPhase")),
		Concern:          strings.TrimSpace(q.Get("jobHuntingConcern")),
		StressFactor:     strings.TrimSpace(q.Get("jobHuntingStressFactor")),
		ActivityDuration: strings.TrimSpace(q.Get("jobHuntingDuration")),
	}
	if jobHunting != (suggestion.JobHuntingContext{}) {
		req.JobHunting = &jobHunting
	}

	return req, nil
}

func parseBool(s string, def bool) (bool, error) {
	if s = strings.TrimSpace(s); s == "" {
		return def, nil
	}
	return strconv.ParseBool(s)
}
