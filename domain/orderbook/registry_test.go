package orderbook

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryNormalizesSymbols(t *testing.T) {
	r := NewRegistry()
	a := r.GetOrCreate("btc-usd")
	b := r.GetOrCreate(" BTC-USD ")
	assert.Same(t, a, b)
	assert.Equal(t, "BTC-USD", a.Symbol())

	got, ok := r.Lookup("Btc-Usd")
	require.True(t, ok)
	assert.Same(t, a, got)

	_, ok = r.Lookup("ETH-USD")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestRegistrySymbolsSorted(t *testing.T) {
	r := NewRegistry()
	for _, s := range []string{"zzz", "aaa", "mmm"} {
		r.GetOrCreate(s)
	}
	assert.Equal(t, []string{"AAA", "MMM", "ZZZ"}, r.Symbols())
}

func TestRegistryConcurrentCreate(t *testing.T) {
	r := NewRegistry()

	const n = 32
	books := make([]*SymbolBook, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			books[i] = r.GetOrCreate("sym")
		}(i)
	}
	wg.Wait()

	for _, b := range books {
		assert.Same(t, books[0], b)
	}
	assert.Equal(t, 1, r.Len())
}
