// Package events defines what the engine announces after a request has
// been committed: accepted orders, trades, cancellations and periodic book
// snapshots. Sinks decide where they go (exit WAL, websocket clients).
package events
