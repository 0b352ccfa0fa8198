package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ChatConfig represents the configuration for the answer generator.
type ChatConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int

	SystemTemplate string
	PromptTemplate string
}

const defaultSystemTemplate = "You are a professional medical regulation assistant, specializing in helping users understand Medicare-related regulatory documents."

const defaultPromptTemplate = `Based on the following medical regulation document content, please answer the user's question.

Please follow these rules:
1. Only answer based on the provided content, do not add external knowledge
2. If the provided content is insufficient to answer the question, please state this clearly
3. Cite relevant sources in your answer using the format [Source 1], [Source 2], etc.
4. Keep answers accurate, professional, and easy to understand
5. If there are multiple relevant pieces of information, organize them into a clear structure

Context content:
%s

User question: %s

Answer:`

// ChatEngine generates grounded answers from a query and assembled context.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

func NewChatWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.Temperature == 0 {
		config.Temperature = 0.1
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 1000
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = defaultSystemTemplate
	}
	if config.PromptTemplate == "" {
		config.PromptTemplate = defaultPromptTemplate
	}

	opts := []openai.Option{openai.WithModel(config.Model)}
	if config.APIKey != "" {
		opts = append(opts, openai.WithToken(config.APIKey))
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{config: config, llm: client}, nil
}

// Generate produces an answer from the query and the assembled context text.
func (ce *ChatEngine) Generate(ctx context.Context, query, contextText string) (string, error) {
	prompt := fmt.Sprintf(ce.config.PromptTemplate, contextText, query)

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, ce.config.SystemTemplate),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	response, err := ce.llm.GenerateContent(ctx, content,
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("chat error: empty response")
	}
	return response.Choices[0].Content, nil
}
