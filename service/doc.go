// Package service is the only write entry point into the engine.
//
// Engine ties the per-symbol books to durable storage: every submit and
// cancel is planned under the book lock, persisted in one transaction and
// only then applied to memory. Events are emitted after the lock is
// released. Transports (gRPC, HTTP) call Engine and nothing below it.
package service
