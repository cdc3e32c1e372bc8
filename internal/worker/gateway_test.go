package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// #region fakes

// fakeCompleter serves scripted responses/errors in order.
type fakeCompleter struct {
	calls     int
	responses []fakeResponse
}

type fakeResponse struct {
	text string
	err  error
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	idx := f.calls
	f.calls++
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	r := f.responses[idx]
	if r.err != nil {
		return openai.ChatCompletionResponse{}, r.err
	}
	return openai.ChatCompletionResponse{
		ID:    "resp-1",
		Model: "gpt-4o",
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: r.text}},
		},
		Usage: openai.Usage{PromptTokens: 7, CompletionTokens: 5, TotalTokens: 12},
	}, nil
}

func fastOpts() Options {
	return Options{Model: "gpt-4o", SoftTimeout: time.Second, HardTimeout: 2 * time.Second}
}

// #endregion fakes

// #region invoke_tests

func TestInvoke_Success(t *testing.T) {
	fake := &fakeCompleter{responses: []fakeResponse{{text: "plain answer"}}}
	g := NewGatewayWithClient(fake, fastOpts())

	res, err := g.Invoke(context.Background(), Request{Role: RoleResearch, Prompt: "p"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "plain answer" {
		t.Errorf("text = %q", res.Text)
	}
	if res.Tokens.TotalTokens != 12 {
		t.Errorf("tokens = %+v", res.Tokens)
	}
	if res.ResponseID != "resp-1" {
		t.Errorf("response id = %q", res.ResponseID)
	}
}

func TestInvoke_StructuredExtraction(t *testing.T) {
	fake := &fakeCompleter{responses: []fakeResponse{
		{text: "Here you go: {\"winner_title\": \"A\"} done."},
	}}
	g := NewGatewayWithClient(fake, fastOpts())

	res, err := g.Invoke(context.Background(), Request{Role: RoleComparison, Prompt: "p", SchemaHint: "{...}"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Structured == nil {
		t.Fatal("expected structured payload")
	}
}

func TestInvoke_MalformedReinforcedRetry(t *testing.T) {
	fake := &fakeCompleter{responses: []fakeResponse{
		{text: "no json at all"},
		{text: `{"ok": true}`},
	}}
	g := NewGatewayWithClient(fake, fastOpts())

	res, err := g.Invoke(context.Background(), Request{Role: RoleComparison, Prompt: "p", SchemaHint: "{...}"})
	if err != nil {
		t.Fatalf("unexpected error after reinforced retry: %v", err)
	}
	if res.Structured == nil {
		t.Fatal("expected structured payload from retry")
	}
	if fake.calls != 2 {
		t.Errorf("calls = %d, want 2", fake.calls)
	}
}

func TestInvoke_MalformedTwiceFails(t *testing.T) {
	fake := &fakeCompleter{responses: []fakeResponse{
		{text: "still prose"},
		{text: "still prose"},
	}}
	g := NewGatewayWithClient(fake, fastOpts())

	_, err := g.Invoke(context.Background(), Request{Role: RoleComparison, Prompt: "p", SchemaHint: "{...}"})
	if !IsKind(err, KindMalformed) {
		t.Fatalf("expected malformed error, got %v", err)
	}
}

func TestInvoke_TransientRetriesThenFails(t *testing.T) {
	serverErr := &openai.APIError{HTTPStatusCode: 500, Message: "internal"}
	fake := &fakeCompleter{responses: []fakeResponse{{err: serverErr}}}
	g := NewGatewayWithClient(fake, fastOpts())

	start := time.Now()
	_, err := g.Invoke(context.Background(), Request{Role: RoleGeneration, Prompt: "p"})
	if !IsKind(err, KindTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	var we *Error
	if !errors.As(err, &we) || we.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %+v", we)
	}
	// Backoff 0.5s + 1s between the three attempts.
	if elapsed := time.Since(start); elapsed < 1500*time.Millisecond {
		t.Errorf("backoff too short: %s", elapsed)
	}
}

func TestInvoke_RateLimitedNoRetry(t *testing.T) {
	fake := &fakeCompleter{responses: []fakeResponse{
		{err: &openai.APIError{HTTPStatusCode: 429, Message: "rate limit"}},
	}}
	g := NewGatewayWithClient(fake, fastOpts())

	_, err := g.Invoke(context.Background(), Request{Role: RoleComparison, Prompt: "p"})
	if !IsKind(err, KindRateLimited) {
		t.Fatalf("expected rate-limited error, got %v", err)
	}
	if fake.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", fake.calls)
	}
}

func TestInvoke_FatalNoRetry(t *testing.T) {
	fake := &fakeCompleter{responses: []fakeResponse{
		{err: &openai.APIError{HTTPStatusCode: 401, Message: "bad key"}},
	}}
	g := NewGatewayWithClient(fake, fastOpts())

	_, err := g.Invoke(context.Background(), Request{Role: RoleComparison, Prompt: "p"})
	if !IsKind(err, KindFatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if fake.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", fake.calls)
	}
}

// #endregion invoke_tests

// #region classify_tests

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline", context.DeadlineExceeded, KindTransient},
		{"api 500", &openai.APIError{HTTPStatusCode: 500}, KindTransient},
		{"api 429", &openai.APIError{HTTPStatusCode: 429}, KindRateLimited},
		{"api 401", &openai.APIError{HTTPStatusCode: 401}, KindFatal},
		{"api 403", &openai.APIError{HTTPStatusCode: 403}, KindFatal},
		{"api 400", &openai.APIError{HTTPStatusCode: 400, Message: "bad request"}, KindFatal},
		{"quota 400", &openai.APIError{HTTPStatusCode: 400, Message: "insufficient quota"}, KindRateLimited},
		{"plain rate limit", errors.New("rate limit reached"), KindRateLimited},
		{"plain timeout", errors.New("connection timeout"), KindTransient},
		{"unknown", errors.New("boom"), KindFatal},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("%s: Classify = %s, want %s", tc.name, got, tc.want)
		}
	}
}

// #endregion classify_tests
