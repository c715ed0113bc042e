package geminiapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"kibarashidev/keypool"
	"kibarashidev/logger"
	"kibarashidev/modelapi"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"google.golang.org/genai"
)

var ErrEmptyResponse = errors.New("empty response from Gemini")

type GeminiConnectProps struct {
	Logger     *logger.LogMiddleware
	Model      string
	MaxWorkers int
}

// Gemini calls the Gemini API with whichever credential the caller hands it.
// One genai client is kept per credential.
type Gemini struct {
	logger *logger.LogMiddleware
	model  string
	sem    *semaphore.Weighted

	mu      sync.Mutex
	clients map[string]*genai.Client
}

func Connect(ctx context.Context, args GeminiConnectProps) *Gemini {
	tracer := otel.Tracer("geminiapi/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	if args.Logger == nil {
		args.Logger = logger.Nop()
	}
	if args.Model == "" {
		args.Model = modelapi.DEFAULT_MODEL_NAME
	}
	maxWorkers := args.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 20
	}

	span.SetAttributes(attribute.Int("maxWorkers", maxWorkers), attribute.String("model", args.Model))
	args.Logger.Logger(ctx).Info("[GeminiAPI] Gemini client ready", zap.String("model", args.Model), zap.Int("maxWorkers", maxWorkers))

	return &Gemini{
		logger:  args.Logger,
		model:   args.Model,
		sem:     semaphore.NewWeighted(int64(maxWorkers)),
		clients: make(map[string]*genai.Client),
	}
}

func (g *Gemini) client(ctx context.Context, credential string) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.clients[credential]; ok {
		return c, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  credential,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	g.clients[credential] = c
	return c, nil
}

// Generate sends prompt with the shared system instruction and returns the raw
// text of the first candidate. The placeholder test credential is answered
// locally.
func (g *Gemini) Generate(ctx context.Context, prompt string, credential string) (string, error) {
	tracer := otel.Tracer("geminiapi/Generate")
	ctx, span := tracer.Start(ctx, "Generate")
	defer span.End()

	span.SetAttributes(attribute.Int("prompt.length", len(prompt)))

	if credential == keypool.DummyCredential {
		g.logger.Logger(ctx).Info("[GeminiAPI] Placeholder credential, returning canned suggestions")
		span.AddEvent("CannedResponse")
		return CANNED_RESPONSE, nil
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer g.sem.Release(1)

	client, err := g.client(ctx, credential)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	thinkingBudget := int32(0)

	safetySettings := []*genai.SafetySetting{
		{
			Category:  genai.HarmCategoryHarassment,
			Threshold: genai.HarmBlockThresholdBlockNone,
		},
		{
			Category:  genai.HarmCategoryHateSpeech,
			Threshold: genai.HarmBlockThresholdBlockNone,
		},
		{
			Category:  genai.HarmCategorySexuallyExplicit,
			Threshold: genai.HarmBlockThresholdBlockNone,
		},
		{
			Category:  genai.HarmCategoryDangerousContent,
			Threshold: genai.HarmBlockThresholdBlockNone,
		},
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: modelapi.SYSTEM_INSTRUCTION}}},
		SafetySettings:    safetySettings,
		Temperature:       genai.Ptr[float32](0.9),
		TopK:              genai.Ptr[float32](40),
		TopP:              genai.Ptr[float32](0.95),
		MaxOutputTokens:   2048,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	})
	if err != nil {
		span.RecordError(err)
		g.logger.Logger(ctx).Warn("[GeminiAPI] Error generating content", zap.Error(err))
		return "", err
	}

	text := responseText(resp)
	if text == "" {
		span.AddEvent("EmptyResponse")
		g.logger.Logger(ctx).Warn("[GeminiAPI] Received empty response")
		return "", ErrEmptyResponse
	}

	span.SetAttributes(attribute.Int("response.length", len(text)))
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return strings.TrimSpace(b.String())
}

const CANNED_RESPONSE = `[
  {
    "title": "Deep breathing",
    "description": "Slow, deep breaths settle the mind and body.",
    "category": "cognitive",
    "steps": ["Sit comfortably", "Breathe in through your nose for 4 counts", "Breathe out through your mouth for 6 counts"],
    "guide": "Let your shoulders drop and follow the rhythm of your breath."
  },
  {
    "title": "Quick stretch",
    "description": "Loosen up a stiff neck and shoulders.",
    "category": "behavioral",
    "steps": ["Roll your shoulders back slowly", "Tilt your head gently to each side", "Reach both arms overhead"],
    "guide": "Move slowly and stay within a comfortable range."
  },
  {
    "title": "Three good things",
    "description": "Recall small things that went well today.",
    "category": "cognitive",
    "steps": ["Close your eyes", "Think of three good moments today", "Notice how each one feels"],
    "guide": "Small moments count. Let each one sink in before moving on."
  }
]`
