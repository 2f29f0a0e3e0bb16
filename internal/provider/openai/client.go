package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"kbchat/internal/domain"
)

// Client adapts the OpenAI API to the embedding and generation provider
// interfaces. One client serves both so query and chunk vectors always
// come from the same embedding path.
type Client struct {
	api        *openai.Client
	embedModel string
	chatModel  string
	maxRetries int
}

// Config configures the OpenAI-compatible client.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	EmbedModel string
	ChatModel  string
	Timeout    time.Duration
	MaxRetries int
}

// New creates a client using the API key from the configured environment
// variable.
func New(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "text-embedding-3-small"
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o-mini"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	apiCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		apiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		api:        openai.NewClientWithConfig(apiCfg),
		embedModel: cfg.EmbedModel,
		chatModel:  cfg.ChatModel,
		maxRetries: cfg.MaxRetries,
	}, nil
}

// Name returns the provider identifier.
func (c *Client) Name() string { return "openai" }

// Embed returns one embedding vector per input text, retrying transient
// failures with exponential backoff.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay(attempt - 1)):
			}
		}
		resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(c.embedModel),
			Input: texts,
		})
		if err != nil {
			lastErr = err
			if retryable(err) {
				continue
			}
			return nil, err
		}
		if len(resp.Data) != len(texts) {
			return nil, fmt.Errorf("embeddings response has %d vectors for %d texts", len(resp.Data), len(texts))
		}
		out := make([][]float32, len(resp.Data))
		for _, item := range resp.Data {
			v := make([]float32, len(item.Embedding))
			copy(v, item.Embedding)
			out[item.Index] = v
		}
		return out, nil
	}
	return nil, lastErr
}

const classifySystemPrompt = `You are an intent classifier. Analyze the user's message and classify it into one of these categories:
- greeting: Simple greetings like 'hi', 'hello', 'hey', 'good morning'
- factual_question: Questions seeking specific information, facts, or knowledge
- chitchat: Casual conversation, small talk, personal questions about the bot
- out_of_scope: Requests for actions the bot cannot perform (write code, perform tasks, etc.)

Respond with JSON in this format: {"intent": "category", "confidence": 0.95}`

// Classify asks the chat model for a structured classification.
func (c *Client) Classify(ctx context.Context, message string) (domain.ClassificationResult, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		MaxTokens: 100,
	})
	if err != nil {
		return domain.ClassificationResult{}, err
	}
	if len(resp.Choices) == 0 {
		return domain.ClassificationResult{}, errors.New("empty chat completion response")
	}
	var parsed struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return domain.ClassificationResult{}, fmt.Errorf("unparseable classification: %w", err)
	}
	return domain.ClassificationResult{
		Category:   domain.Category(parsed.Intent),
		Confidence: parsed.Confidence,
	}, nil
}

const greetingSystemPrompt = `You are a friendly AI assistant for a knowledge-base chatbot. Generate a warm, professional greeting that:
1. Welcomes the user
2. Explains that you answer questions ONLY based on the knowledge available to you
3. Mentions you don't make up information
4. Invites them to ask questions

Keep it brief (2-3 sentences). Never use technical terms like 'crawling' or 'indexing'.`

const fallbackSystemPrompt = `You are a helpful AI assistant for a knowledge-base chatbot. The user's message is outside the scope of factual questions. Respond politely and:
1. If it's chitchat or casual conversation, engage briefly but remind them of your primary purpose
2. If it's a request you can't fulfill (write code, perform actions), politely decline and explain your limitations
3. Always redirect them back to asking questions about the knowledge available to you

Never use technical terms like 'crawling', 'indexing', or 'database'. Never state facts as if they came from the knowledge base.`

// Generate produces a free-form response for greeting, chitchat and
// out-of-scope messages.
func (c *Client) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	system := fallbackSystemPrompt
	user := req.Message
	maxTokens := 200
	if req.Category == domain.CategoryGreeting {
		system = greetingSystemPrompt
		user = "Generate a greeting"
		maxTokens = 150
	}
	if req.Context != "" {
		system += "\n\nContext: " + req.Context
	}
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty chat completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	// Transport-level failures are worth retrying.
	return true
}

// retryDelay is exponential backoff capped at 5s.
func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
