package llm

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/grammar-coach/backend/internal/metrics"
	"github.com/grammar-coach/backend/pkg/logger"
)

// systemPrompt pins the evaluator to JSON-only output; the per-request
// instructions come from the prompt builder as the user turn.
const systemPrompt = "You are a JSON-only ESL grammar evaluator. Always output ONLY valid JSON. Assume learner input is English only."

// api is the slice of the OpenAI surface the client uses. Tests swap in
// a counting fake.
type api interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

type Client struct {
	api                api
	model              string
	transcriptionModel string
	language           string
	timeout            time.Duration
}

func NewClient(apiKey, model, transcriptionModel, language string, timeoutSec int) *Client {
	logger.Info("LLM client initialized",
		zap.String("model", model),
		zap.String("transcription_model", transcriptionModel),
	)

	return &Client{
		api:                openai.NewClient(apiKey),
		model:              model,
		transcriptionModel: transcriptionModel,
		language:           language,
		timeout:            time.Duration(timeoutSec) * time.Second,
	}
}

// Evaluate sends the built prompt as the user turn and returns the
// trimmed raw reply of the single completion choice. Errors propagate;
// an evaluation failure has no fallback content.
func (c *Client) Evaluate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: c.model,
			// Temperature carries omitempty, so a literal 0 would fall
			// back to the API default; the smallest positive float
			// stands in for deterministic sampling.
			Temperature: math.SmallestNonzeroFloat32,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: systemPrompt,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}

	metrics.LLMTokensUsed.WithLabelValues(c.model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(c.model, "completion").Add(float64(resp.Usage.CompletionTokens))

	logger.Debug("LLM completion generated",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Transcribe converts audio bytes to text. Empty input returns ""
// without a remote call, and every failure degrades to "" as well: no
// transcript means "no speech detected", never an error for the caller.
func (c *Client) Transcribe(ctx context.Context, audio []byte) string {
	if len(audio) == 0 {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	tmpPath, err := writeTempAudio(audio)
	if err != nil {
		logger.Warn("Failed to stage audio for transcription", zap.Error(err))
		metrics.TranscriptionFailures.Inc()
		return ""
	}
	defer os.Remove(tmpPath)

	resp, err := c.api.CreateTranscription(
		ctx,
		openai.AudioRequest{
			Model:    c.transcriptionModel,
			FilePath: tmpPath,
			Language: c.language,
		},
	)
	if err != nil {
		logger.Warn("Transcription failed, treating as no speech", zap.Error(err))
		metrics.TranscriptionFailures.Inc()
		return ""
	}

	return strings.TrimSpace(resp.Text)
}

// writeTempAudio stages the upload in a temp file for the transcription
// API. The handle is closed on every path; the caller removes the file.
func writeTempAudio(audio []byte) (string, error) {
	tmp, err := os.CreateTemp("", "grammar-audio-*.webm")
	if err != nil {
		return "", fmt.Errorf("failed to create temp audio file: %w", err)
	}

	if _, err := tmp.Write(audio); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write temp audio file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close temp audio file: %w", err)
	}

	return tmp.Name(), nil
}
