package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
	"github.com/kirillkom/pdf-chat/internal/infrastructure/resilience"
)

type Config struct {
	BaseURL        string
	ChatModel      string
	EmbedModel     string
	Dimension      int
	RequestTimeout time.Duration
}

type Client struct {
	baseURL    string
	chatModel  string
	embedModel string
	dimension  int
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = domain.EmbeddingDimension
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbedModel,
		dimension:  dimension,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

// Embedder implements ports.EmbeddingProvider over /api/embed.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	request := embedRequest{Model: e.client.embedModel, Input: text}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.call(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, domain.WrapError(domain.ErrEmbeddingProvider, "ollama embed", err)
	}
	if len(response.Embeddings) == 0 {
		return nil, domain.WrapError(domain.ErrEmbeddingProvider, "ollama embed", fmt.Errorf("empty embedding result"))
	}
	vector := response.Embeddings[0]
	if len(vector) != e.client.dimension {
		return nil, domain.WrapError(
			domain.ErrEmbeddingProvider,
			"ollama embed",
			fmt.Errorf("embedding dimension %d, expected %d", len(vector), e.client.dimension),
		)
	}
	return vector, nil
}

// Generator implements ports.AnswerGenerator over /api/chat.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []chatMessage `json:"messages"`
}

func (g *Generator) Generate(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	request := chatRequest{
		Model: g.client.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
	}

	var response struct {
		Message chatMessage `json:"message"`
	}
	if err := g.client.call(ctx, "/api/chat", request, &response, "chat"); err != nil {
		return "", err
	}
	answer := strings.TrimSpace(response.Message.Content)
	if answer == "" {
		return "", fmt.Errorf("ollama chat: empty response")
	}
	return answer, nil
}
