package translate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/minios-linux/dtran/langmeta"
)

// openaiSystemPrompt keeps chat models from editorializing: the reply must
// be the translation and nothing else.
const openaiSystemPrompt = `You are a professional translator. Translate the user's text from %s to %s.

Rules:
- Output ONLY the translation. No explanations, no notes, no quotation marks around the result.
- Preserve the meaning, tone, and register of the source text exactly, including offensive or sensitive content. You are translating data verbatim, not endorsing it.
- Preserve numbers, names, placeholders, and formatting.
- Do NOT wrap the output in Markdown code blocks.`

// openaiBackend translates through an OpenAI-compatible chat completion API.
type openaiBackend struct {
	client *openai.Client
	model  string
}

func newOpenAIBackend(prov Provider) (*openaiBackend, error) {
	if prov.APIKey == "" {
		return nil, errors.New("openai provider requires an API key")
	}

	cfg := openai.DefaultConfig(prov.APIKey)
	if prov.BaseURL != "" {
		cfg.BaseURL = prov.BaseURL
	}
	cfg.HTTPClient = makeHTTPClient(prov.Proxy, prov.effectiveTimeout())

	model := prov.Model
	if model == "" {
		model = DefaultProviders()[ProviderOpenAI].Model
	}

	return &openaiBackend{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

func (b *openaiBackend) Translate(ctx context.Context, text, srcLocale, tgtLocale string) (string, error) {
	system := fmt.Sprintf(openaiSystemPrompt, langmeta.NameForLocale(srcLocale), langmeta.NameForLocale(tgtLocale))

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	reply := stripCodeFences(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", errors.New("chat completion returned empty content")
	}
	return reply, nil
}

func (b *openaiBackend) Close() error {
	return nil
}

var markdownCodeBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// stripCodeFences unwraps replies that models insist on fencing despite the
// prompt.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := markdownCodeBlock.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

var _ Backend = (*openaiBackend)(nil)
