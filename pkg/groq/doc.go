// Package groq is the completion-provider client. Groq exposes an
// OpenAI-compatible chat completions endpoint, so the client is a thin
// wrapper over the openai-go SDK pointed at the Groq base URL, plus the
// error classification the send pipeline needs to decide whether a failure
// counts against the key that made the call.
package groq
