// Package chat owns conversation state: the message and chat types, the
// persisted chat store record, and the lifecycle operations over it
// (create, switch, delete, clear, list). The whole store is written back
// on every mutation; the active-chat pointer lives on the Manager and is
// never persisted.
package chat
