// Package completion requests single-turn chat completions from a remote
// model. The Client speaks the OpenAI-compatible API, so OpenAI, Ollama,
// vLLM and similar servers all work.
//
// Example usage:
//
//	client, _ := completion.NewClient(
//	    completion.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    completion.WithModel("gpt-4o-mini"),
//	)
//	defer client.Close()
//
//	resp, _ := client.Complete(ctx, "You are a tour robot.", "What is this room?")
//	fmt.Println(resp.Content)
package completion

import "context"

// Provider answers one user message under a system prompt.
type Provider interface {
	// Complete sends system and user as a two-message conversation and
	// returns the assistant's reply.
	Complete(ctx context.Context, system, user string) (*Response, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Response is a completed reply.
type Response struct {
	// Content is the assistant's text.
	Content string

	// FinishReason indicates why generation stopped.
	FinishReason string

	// Model used for generation.
	Model string

	// Usage tracks token consumption.
	Usage Usage

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64
}

// Usage tracks token consumption for billing and limits.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
