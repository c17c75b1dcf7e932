package ai

import (
	"Omni/core"
	"context"
)

// Adapters binds each capability to its provider call. A nil gemini leaves
// that capability unbound; the dispatcher reports it as unavailable.
func Adapters(openAI *OpenAI, gemini *Gemini, vision *Vision) map[core.Capability]core.Provider {
	adapters := map[core.Capability]core.Provider{
		core.CapChat: core.ProviderFunc(func(ctx context.Context, p *core.Payload) (*core.Result, error) {
			text, err := openAI.Complete(ctx, p.Text)
			if err != nil {
				return nil, err
			}
			return &core.Result{Text: text}, nil
		}),
		core.CapSpeech: core.ProviderFunc(func(ctx context.Context, p *core.Payload) (*core.Result, error) {
			audio, err := openAI.Synthesize(ctx, p.Text)
			if err != nil {
				return nil, err
			}
			return &core.Result{Audio: audio}, nil
		}),
		core.CapImage: core.ProviderFunc(func(ctx context.Context, p *core.Payload) (*core.Result, error) {
			url, err := openAI.GenerateImage(ctx, p.Text)
			if err != nil {
				return nil, err
			}
			return &core.Result{ImageURL: url}, nil
		}),
		core.CapVision: core.ProviderFunc(func(ctx context.Context, p *core.Payload) (*core.Result, error) {
			text, err := vision.DetectText(ctx, p.Data)
			if err != nil {
				return nil, err
			}
			return &core.Result{Text: text}, nil
		}),
		core.CapTranscribe: core.ProviderFunc(func(ctx context.Context, p *core.Payload) (*core.Result, error) {
			text, err := openAI.Transcribe(ctx, p.Data, p.Name)
			if err != nil {
				return nil, err
			}
			return &core.Result{Text: text}, nil
		}),
	}

	if gemini != nil {
		adapters[core.CapGemini] = core.ProviderFunc(func(ctx context.Context, p *core.Payload) (*core.Result, error) {
			text, err := gemini.Complete(ctx, p.Text)
			if err != nil {
				return nil, err
			}
			return &core.Result{Text: text}, nil
		})
	}

	return adapters
}
