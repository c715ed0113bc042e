package orchestrator

import (
	"strings"
)

type FailureKind int

const (
	FailureGeneric FailureKind = iota
	FailureRateLimit
)

func (k FailureKind) String() string {
	if k == FailureRateLimit {
		return "rate_limit"
	}
	return "generic"
}

// Matched against the lowercased error text. The Gemini client reports quota
// errors as "Error 429, ... Status: RESOURCE_EXHAUSTED".
var rateLimitMarkers = []string{
	"rate limit",
	"quota",
	"429",
	"resource has been exhausted",
	"resource_exhausted",
}

// ClassifyFailure decides whether a failed call should put its credential on
// cooldown straight away.
func ClassifyFailure(err error) FailureKind {
	if err == nil {
		return FailureGeneric
	}
	msg := strings.ToLower(err.Error())
	for _, m := range rateLimitMarkers {
		if strings.Contains(msg, m) {
			return FailureRateLimit
		}
	}
	return FailureGeneric
}
