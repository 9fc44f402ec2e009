package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"pkt.systems/pslog"
)

const defaultSystemPrompt = "You are a coding assistant embedded in the user's editor. " +
	"Propose edits as fenced code blocks, each preceded by a one-line label ending in a colon."

// OpenAIConfig selects the chat completion endpoint.
type OpenAIConfig struct {
	Model        string
	BaseURL      string
	APIKey       string
	SystemPrompt string
}

// OpenAI streams chat completions and keeps the turn history so follow-up
// prompts carry the conversation.
type OpenAI struct {
	client   *openai.Client
	cfg      OpenAIConfig
	handlers Handlers

	mu    sync.Mutex
	turns []openai.ChatCompletionMessage
}

// NewOpenAI builds a client. An empty API key is ErrUnavailable.
func NewOpenAI(cfg OpenAIConfig, handlers Handlers) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: no API key", ErrUnavailable)
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAI{
		client:   openai.NewClientWithConfig(clientCfg),
		cfg:      cfg,
		handlers: handlers,
		turns:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: cfg.SystemPrompt}},
	}, nil
}

// Send opens a stream for text; the reply is delivered at end of stream.
func (o *OpenAI) Send(ctx context.Context, text string) error {
	o.mu.Lock()
	o.turns = append(o.turns, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})
	req := openai.ChatCompletionRequest{
		Model:    o.cfg.Model,
		Messages: append([]openai.ChatCompletionMessage(nil), o.turns...),
		Stream:   true,
	}
	o.mu.Unlock()

	log := pslog.Ctx(ctx)
	log.Info("openai request", "model", o.cfg.Model, "turns", len(req.Messages), "prompt_len", len(text))
	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		o.dropLastTurn()
		log.Error("openai request failed", "err", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	go func() {
		defer stream.Close()
		started := time.Now()
		var reply strings.Builder
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				o.dropLastTurn()
				log.Error("openai stream failed", "err", err)
				o.handlers.fail(fmt.Errorf("openai stream failed: %w", err))
				return
			}
			if len(resp.Choices) > 0 {
				reply.WriteString(resp.Choices[0].Delta.Content)
			}
		}
		out := reply.String()
		o.mu.Lock()
		o.turns = append(o.turns, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: out})
		o.mu.Unlock()
		log.Info("openai reply", "chars", len(out), "elapsed", time.Since(started))
		o.handlers.reply(out)
	}()
	return nil
}

func (o *OpenAI) dropLastTurn() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.turns) > 1 {
		o.turns = o.turns[:len(o.turns)-1]
	}
}

// Turns returns the number of user and assistant messages exchanged.
func (o *OpenAI) Turns() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.turns) - 1
}

func (o *OpenAI) Close() error { return nil }
