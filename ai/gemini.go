package ai

import (
	"Omni/core"
	"Omni/lib/sl"
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// Gemini is the alternative chat backend.
type Gemini struct {
	conf   *core.Config
	log    *slog.Logger
	client *genai.Client
}

func NewGemini(ctx context.Context, conf *core.Config, log *slog.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  conf.GeminiApiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		conf:   conf,
		log:    log.With(sl.Module("gemini")),
		client: client,
	}, nil
}

func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := g.client.Models.GenerateContent(ctx, g.conf.GeminiModel, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("generate content: empty response")
	}

	g.log.With(
		slog.String("model", g.conf.GeminiModel),
		slog.Int("chars", len(text)),
	).Info("gemini completion")

	return text, nil
}
