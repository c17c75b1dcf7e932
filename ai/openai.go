package ai

import (
	"Omni/core"
	"Omni/lib/sl"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI wraps the chat, image, speech and transcription endpoints behind
// capability-shaped methods.
type OpenAI struct {
	conf   *core.Config
	log    *slog.Logger
	client openai.Client
}

func NewOpenAI(conf *core.Config, log *slog.Logger) *OpenAI {
	return &OpenAI{
		conf:   conf,
		log:    log.With(sl.Module("openai")),
		client: openai.NewClient(option.WithAPIKey(conf.OpenAIApiKey)),
	}
}

func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(o.conf.Model),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices")
	}

	response := completion.Choices[0].Message.Content

	logText := response
	if len(logText) > 50 {
		logText = logText[:50] + "..."
	}
	o.log.With(
		slog.String("model", completion.Model),
		slog.String("text", logText),
	).Info("chat completion")

	return response, nil
}

func (o *OpenAI) GenerateImage(ctx context.Context, prompt string) (string, error) {
	image, err := o.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:  prompt,
		Model:   openai.ImageModelDallE3,
		N:       openai.Int(1),
		Size:    openai.ImageGenerateParamsSize1024x1024,
		Quality: openai.ImageGenerateParamsQualityStandard,
	})
	if err != nil {
		return "", fmt.Errorf("image generation: %w", err)
	}
	if len(image.Data) == 0 {
		return "", fmt.Errorf("image generation: empty data")
	}

	o.log.Info("image generated", slog.Int64("created", image.Created))
	return image.Data[0].URL, nil
}

// Synthesize renders text as mp3 voice bytes.
func (o *OpenAI) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := o.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model: openai.SpeechModelTTS1,
		Voice: openai.AudioSpeechNewParamsVoice(o.conf.TTSVoice),
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis: %w", err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			o.log.Warn("closing speech body", sl.Err(err))
		}
	}(resp.Body)

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading speech body: %w", err)
	}

	o.log.Info("speech synthesized", slog.Int("bytes", len(audio)))
	return audio, nil
}

// Transcribe turns recorded audio into text. The name hints the container
// format to the API, defaulting to Telegram's voice-note ogg.
func (o *OpenAI) Transcribe(ctx context.Context, audio []byte, name string) (string, error) {
	if name == "" {
		name = "voice.ogg"
	}

	transcription, err := o.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModelWhisper1,
		File:  openai.File(bytes.NewReader(audio), name, "application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}

	o.log.Info("audio transcribed", slog.Int("chars", len(transcription.Text)))
	return transcription.Text, nil
}
