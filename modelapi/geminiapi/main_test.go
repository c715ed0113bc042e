package geminiapi

import (
	"context"
	"os"
	"testing"
	"time"

	"kibarashidev/keypool"
	"kibarashidev/logger"
	"kibarashidev/suggestion"

	"google.golang.org/genai"
)

func TestGeneratePlaceholderCredential(t *testing.T) {
	ctx := context.Background()
	gemini := Connect(ctx, GeminiConnectProps{Logger: logger.Nop()})

	text, err := gemini.Generate(ctx, "anything", keypool.DummyCredential)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	suggestions, err := suggestion.ParseResponse(text, 5)
	if err != nil {
		t.Fatalf("canned response did not parse: %v", err)
	}
	if len(suggestions) != 3 {
		t.Errorf("expected 3 suggestions, got %d", len(suggestions))
	}
	for _, s := range suggestions {
		if s.DurationMinutes != 5 {
			t.Errorf("expected duration 5, got %d", s.DurationMinutes)
		}
	}
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking...", Thought: true},
				{Text: "  [1,"},
				{Text: "2]  "},
			}},
		}},
	}
	if got := responseText(resp); got != "[1,2]" {
		t.Errorf("unexpected text %q", got)
	}
	if got := responseText(&genai.GenerateContentResponse{}); got != "" {
		t.Errorf("expected empty text, got %q", got)
	}
	if got := responseText(nil); got != "" {
		t.Errorf("expected empty text for nil response, got %q", got)
	}
}

func TestGenerateLive(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("GEMINI_API_KEY environment variable not set, skipping test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	gemini := Connect(ctx, GeminiConnectProps{Logger: logger.Connect(logger.LoggerConnectProps{Production: false})})

	text, err := gemini.Generate(ctx, "Suggest 3 ways to relax at home in 5 minutes as a JSON array with title, description, category, steps and guide.", apiKey)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if text == "" {
		t.Error("Expected non-empty response, got empty string")
	}
	t.Logf("Response received: %s", text)
}
