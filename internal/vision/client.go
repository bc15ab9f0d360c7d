// Package vision wraps the vision-language model behind two operations:
// document classification and taxonomy-driven field extraction, plus the two
// application-level reduction calls. The client returns raw model text;
// interpreting the response structure is the caller's job.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/amitvarma/ai-loan-processor/internal/imaging"
	"github.com/amitvarma/ai-loan-processor/internal/models"
)

// ErrServiceUnavailable marks connectivity failures against the model
// service, after the retry budget is exhausted or while the circuit breaker
// is open.
var ErrServiceUnavailable = errors.New("model service unavailable")

// Config holds model client configuration.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration

	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
}

// Client calls the vision-language model.
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	policy      *callPolicy
	logger      *zap.Logger
}

// NewClient creates a vision client. BaseURL may point at any
// OpenAI-compatible endpoint.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     timeout,
		policy:      newCallPolicy(cfg, logger),
		logger:      logger,
	}
}

// Classify sends the first page of a document with the classification
// instruction and maps the trimmed response onto the taxonomy. Responses
// outside the taxonomy are preserved verbatim as best-effort tags.
func (c *Client) Classify(ctx context.Context, page imaging.Page) (models.DocumentType, error) {
	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: classificationPrompt},
		imagePart(page),
	}

	raw, err := c.complete(ctx, "classify", parts)
	if err != nil {
		return "", err
	}

	docType := models.ParseDocumentType(strings.TrimSpace(raw))
	if !docType.Known() {
		c.logger.Warn("Classifier returned tag outside taxonomy",
			zap.String("tag", string(docType)))
	}
	return docType, nil
}

// Extract sends all pages with the tag-specific extraction instruction and
// returns the model's raw text response.
func (c *Client) Extract(ctx context.Context, pages []imaging.Page, docType models.DocumentType) (string, error) {
	parts := make([]openai.ChatMessagePart, 0, len(pages)+1)
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: extractionPrompt(docType),
	})
	for _, p := range pages {
		parts = append(parts, imagePart(p))
	}

	return c.complete(ctx, "extract", parts)
}

// CrossValidate runs the cross-document consistency reduction over the
// condensed per-document data (a JSON string).
func (c *Client) CrossValidate(ctx context.Context, summarizedData string) (string, error) {
	parts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: fmt.Sprintf(crossValidationPrompt, summarizedData),
	}}
	return c.complete(ctx, "cross_validate", parts)
}

// Summarize runs the final underwriting summary reduction over the complete
// application data (a JSON string).
func (c *Client) Summarize(ctx context.Context, completeData string) (string, error) {
	parts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: fmt.Sprintf(finalSummaryPrompt, completeData),
	}}
	return c.complete(ctx, "summarize", parts)
}

// complete performs one chat completion under the retry/breaker policy with
// an explicit per-call timeout.
func (c *Client) complete(ctx context.Context, operation string, parts []openai.ChatMessagePart) (string, error) {
	start := time.Now()

	content, err := c.policy.do(ctx, operation, func(ctx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:       c.model,
			Temperature: c.temperature,
			MaxTokens:   c.maxTokens,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:         openai.ChatMessageRoleUser,
					MultiContent: parts,
				},
			},
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("no response choices from model")
		}
		return resp.Choices[0].Message.Content, nil
	})

	if err != nil {
		c.logger.Error("Model call failed",
			zap.String("operation", operation),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", err
	}

	c.logger.Debug("Model call completed",
		zap.String("operation", operation),
		zap.Int("content_length", len(content)),
		zap.Duration("elapsed", time.Since(start)))
	return content, nil
}

func imagePart(page imaging.Page) openai.ChatMessagePart {
	return openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeImageURL,
		ImageURL: &openai.ChatMessageImageURL{
			URL: fmt.Sprintf("data:%s;base64,%s",
				page.MIMEType, base64.StdEncoding.EncodeToString(page.Data)),
			Detail: openai.ImageURLDetailHigh,
		},
	}
}
