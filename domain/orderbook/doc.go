// Package orderbook implements the per-symbol limit order book and the
// price-time priority matching algorithm.
//
// A SymbolBook pairs a bid side and an ask side, each a red-black tree of
// price levels ordered best-first, with a locator index from order id to
// (side, price, seq). All reads and writes of a book happen under its own
// mutex; the Registry that maps symbols to books is guarded by a separate
// lock that is never held while matching.
//
// Matching is split into plan, commit and apply. The plan is computed
// without touching the book, the caller persists it through a commit
// callback, and only a successful commit is applied to memory. A failed
// commit therefore leaves the book exactly as it was.
package orderbook
