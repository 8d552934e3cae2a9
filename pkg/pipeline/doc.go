// Package pipeline orchestrates one message exchange: it guards against a
// second in-flight send on the same chat, durably appends the user message
// before any network activity, draws a key from the pool, makes exactly one
// provider call, and converts every failure into a persisted assistant
// reply so the chat always returns to an idle, retryable state.
package pipeline
