package orderbook

import (
	"sort"
	"sync"
)

// Registry maps symbols to their books. Its lock covers the map only and
// is never taken while a book lock is held.
type Registry struct {
	mu    sync.RWMutex
	books map[string]*SymbolBook
}

func NewRegistry() *Registry {
	return &Registry{books: make(map[string]*SymbolBook)}
}

// GetOrCreate returns the book for symbol, creating it on first use.
// Books are never removed.
func (r *Registry) GetOrCreate(symbol string) *SymbolBook {
	key := NormalizeSymbol(symbol)

	r.mu.RLock()
	b, ok := r.books[key]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.books[key]; ok {
		return b
	}
	b = NewSymbolBook(key)
	r.books[key] = b
	return b
}

// Lookup returns the book for symbol without creating one.
func (r *Registry) Lookup(symbol string) (*SymbolBook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.books[NormalizeSymbol(symbol)]
	return b, ok
}

// Symbols lists known symbols in sorted order.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.books))
	for s := range r.books {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Strings(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.books)
}
