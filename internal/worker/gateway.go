package worker

// #region imports
import (
	"context"
	"log"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// #endregion

// #region constants

const (
	maxTransientAttempts = 3
	backoffBase          = 500 * time.Millisecond
	backoffFactor        = 2
	backoffCap           = 30 * time.Second

	reinforcement = "\n\nReturn ONLY a single valid JSON object matching the requested schema. No prose before or after it."
)

// #endregion

// #region chat-completer

// ChatCompleter is the slice of the OpenAI client the gateway needs.
// Tests inject a fake; production wires *openai.Client.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// #endregion

// #region gateway

// Options tune a Gateway.
type Options struct {
	Model       string
	SoftTimeout time.Duration // logged when exceeded
	HardTimeout time.Duration // cancels the call, classifies transient
}

// Gateway adapts an OpenAI-compatible chat endpoint to the Worker
// contract: uniform request/response, failure classification, and
// retry with exponential backoff.
type Gateway struct {
	client ChatCompleter
	opts   Options
}

// NewGateway builds a gateway over an OpenAI-compatible endpoint.
// endpoint may be empty for the default API base.
func NewGateway(apiKey, endpoint string, opts Options) *Gateway {
	cfg := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		cfg.BaseURL = endpoint
	}
	return NewGatewayWithClient(openai.NewClientWithConfig(cfg), opts)
}

// NewGatewayWithClient creates a Gateway with an injected completer.
// Used for testing without a network connection.
func NewGatewayWithClient(client ChatCompleter, opts Options) *Gateway {
	if opts.SoftTimeout == 0 {
		opts.SoftTimeout = 60 * time.Second
	}
	if opts.HardTimeout == 0 {
		opts.HardTimeout = 120 * time.Second
	}
	return &Gateway{client: client, opts: opts}
}

// #endregion

// #region invoke

// Invoke blocks until the worker completes or its retry budget is
// exhausted. Transient failures retry up to 3 attempts with
// exponential backoff; malformed output retries once with a
// reinforced instruction; rate-limited and fatal never retry.
func (g *Gateway) Invoke(ctx context.Context, req Request) (Result, error) {
	prompt := req.Prompt
	attempts := 0
	reinforced := false

	for {
		attempts++
		res, err := g.call(ctx, req.Role, prompt)
		if err == nil {
			if req.SchemaHint == "" {
				return res, nil
			}
			if raw := ExtractStructured(res.Text); raw != nil {
				res.Structured = raw
				return res, nil
			}
			// Schema hint supplied but no structured block found.
			if !reinforced {
				reinforced = true
				prompt = req.Prompt + reinforcement
				log.Printf("[WORKER] malformed output from role=%s, retrying with reinforced instruction", req.Role)
				continue
			}
			return Result{}, &Error{Kind: KindMalformed, Attempts: attempts, LastMessage: "no well-formed structured block in output"}
		}

		kind := Classify(err)
		switch kind {
		case KindTransient:
			if attempts >= maxTransientAttempts {
				return Result{}, &Error{Kind: KindTransient, Attempts: attempts, LastMessage: err.Error()}
			}
			delay := transientBackoff(attempts)
			log.Printf("[WORKER] transient failure (attempt %d/%d), backing off %s: %v",
				attempts, maxTransientAttempts, delay, err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return Result{}, &Error{Kind: KindTransient, Attempts: attempts, LastMessage: ctx.Err().Error()}
			}
		default:
			return Result{}, &Error{Kind: kind, Attempts: attempts, LastMessage: err.Error()}
		}
	}
}

// call runs one completion under the hard timeout, logging when the
// soft timeout passes.
func (g *Gateway) call(ctx context.Context, role, prompt string) (Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.opts.HardTimeout)
	defer cancel()

	soft := time.AfterFunc(g.opts.SoftTimeout, func() {
		log.Printf("[WORKER] role=%s exceeded soft timeout %s", role, g.opts.SoftTimeout)
	})
	defer soft.Stop()

	resp, err := g.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: g.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(role)},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return Result{}, err
	}
	if len(resp.Choices) == 0 {
		return Result{}, &Error{Kind: KindMalformed, Attempts: 1, LastMessage: "no choices in response"}
	}

	return Result{
		Text:       resp.Choices[0].Message.Content,
		Model:      resp.Model,
		ResponseID: resp.ID,
		Tokens: TokensUsed{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func transientBackoff(attempt int) time.Duration {
	delay := backoffBase
	for i := 1; i < attempt; i++ {
		delay *= backoffFactor
	}
	if delay > backoffCap {
		delay = backoffCap
	}
	return delay
}

// #endregion
