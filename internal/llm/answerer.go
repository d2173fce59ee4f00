// Package llm answers questions grounded in a document's OCR text. A real
// provider is used when a credential is configured; otherwise the service
// degrades to a clearly labeled mock so the ask flow always returns
// something.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/mistral"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/LucasKiller/DocLens/internal/config"
)

var log = logrus.StandardLogger()

const (
	// maxContextChars bounds request size and cost; truncation keeps the
	// prefix of the OCR text.
	maxContextChars = 20000

	mockPreviewChars = 240

	temperature = 0.2
)

const systemPrompt = "Você é um assistente que responde com base no texto OCR fornecido. " +
	"Responda de forma objetiva e cite trechos do contexto quando relevante. " +
	"Se não souber, diga que não encontrou no documento."

// Answerer produces a grounded natural-language answer to a question about
// the supplied document text.
type Answerer interface {
	Answer(ctx context.Context, question, docContext string) (string, error)
}

// NewAnswerer selects the configured provider. There is no runtime fallback
// chain: the mock is only chosen at construction time, when no credential
// exists for a provider that needs one.
func NewAnswerer(cfg config.Config) (Answerer, error) {
	provider := strings.ToLower(cfg.LLMProvider)

	if cfg.LLMAPIKey == "" && provider != "ollama" {
		log.WithField("provider", provider).Warn("no LLM credential configured, answers will be mocked")
		return &MockAnswerer{Reason: fmt.Sprintf("%s (sem chave)", provider)}, nil
	}

	var model llms.Model
	var err error

	switch provider {
	case "openai":
		model, err = openai.New(
			openai.WithModel(cfg.LLMModel),
			openai.WithToken(cfg.LLMAPIKey),
		)
	case "ollama":
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
	case "anthropic":
		model, err = anthropic.New(
			anthropic.WithModel(cfg.LLMModel),
			anthropic.WithToken(cfg.LLMAPIKey),
		)
	case "mistral":
		model, err = mistral.New(
			mistral.WithModel(cfg.LLMModel),
			mistral.WithAPIKey(cfg.LLMAPIKey),
		)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.LLMProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", provider, err)
	}

	log.WithFields(logrus.Fields{"provider": provider, "model": cfg.LLMModel}).
		Info("llm answerer ready")
	return &ModelAnswerer{model: model, maxTokens: cfg.LLMMaxTokens}, nil
}

// ModelAnswerer wraps a langchaingo model with the grounding prompt and
// generation limits.
type ModelAnswerer struct {
	model     llms.Model
	maxTokens int
}

func (a *ModelAnswerer) Answer(ctx context.Context, question, docContext string) (string, error) {
	safeContext := truncate(docContext, maxContextChars)
	prompt := fmt.Sprintf("Documento (OCR):\n\"\"\"%s\"\"\"\n\nPergunta: %s", safeContext, question)

	completion, err := a.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	},
		llms.WithTemperature(temperature),
		llms.WithMaxTokens(a.maxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("llm returned no answer")
	}

	return strings.TrimSpace(completion.Choices[0].Content), nil
}

// MockAnswerer is the deterministic degrade path. Its output is tagged so it
// can never be mistaken for a grounded answer.
type MockAnswerer struct {
	Reason string
}

func (m *MockAnswerer) Answer(_ context.Context, question, docContext string) (string, error) {
	preview := strings.Join(strings.Fields(truncate(docContext, mockPreviewChars)), " ")
	return fmt.Sprintf("MOCK (%s)\nPergunta: %s\nResumo do contexto: %s...", m.Reason, question, preview), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
