// Package translate is a pass-through to a chat-completion model for
// description translation, fronted by a memoizing cache.
package translate

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/atomic"
)

type Service interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

type GPTTranslator struct {
	client *openai.Client
	model  string
}

func NewGPTTranslator(apiKey string) *GPTTranslator {
	return &GPTTranslator{
		client: openai.NewClient(apiKey),
		model:  openai.GPT4o,
	}
}

func (s *GPTTranslator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf("You are a translator. Translate the user's text to %s. Reply with the translation only.", targetLang),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
		MaxTokens: 300,
	})
	if err != nil {
		return "", fmt.Errorf("translation request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("translation request: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

type cacheKey struct {
	text string
	lang string
}

// Cached memoizes translations by (text, target language). Entries never
// expire; translations of the same description are stable.
type Cached struct {
	next    Service
	mu      sync.RWMutex
	entries map[cacheKey]string

	hits   atomic.Int64
	misses atomic.Int64
}

func NewCached(next Service) *Cached {
	return &Cached{next: next, entries: make(map[cacheKey]string)}
}

func (c *Cached) Translate(ctx context.Context, text, targetLang string) (string, error) {
	key := cacheKey{text: text, lang: targetLang}

	c.mu.RLock()
	out, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.hits.Inc()
		return out, nil
	}
	c.misses.Inc()

	out, err := c.next.Translate(ctx, text, targetLang)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[key] = out
	c.mu.Unlock()
	return out, nil
}

// Stats reports cache hits and misses since startup.
func (c *Cached) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
