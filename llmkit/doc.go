// Package llmkit is a small provider-agnostic LLM client layer.
//
// It defines the message, request, response, and stream-event types the
// orchestration core exchanges with a language model, a typed error
// hierarchy with retryability classification, and a Client that routes
// requests to registered ProviderAdapters. The bundled GollmAdapter backs
// the client with gollm, so any provider gollm speaks is available.
//
// The orchestration core in package runloop depends only on the narrow
// ModelCaller subset (Complete and Stream); everything else here exists to
// make wiring a real provider a few lines:
//
//	adapter, err := llmkit.NewGollmAdapter("anthropic", "")
//	client := llmkit.NewClient(llmkit.WithProvider("anthropic", adapter))
//	resp, err := client.Complete(ctx, llmkit.Request{
//	    Model:    "claude-sonnet-4-5",
//	    Messages: []llmkit.Message{llmkit.UserMessage("hello")},
//	})
package llmkit
