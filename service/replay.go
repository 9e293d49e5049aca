package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"matchbook/domain/orderbook"
	"matchbook/infra/sequence"
	"matchbook/infra/storage"
)

// RecoveryStore is what startup needs from durable state.
type RecoveryStore interface {
	OpenOrders(ctx context.Context) ([]storage.OrderRecord, error)
	LoadNextIDSeed(ctx context.Context) (uint64, error)
}

// RecoverBooks rebuilds the in-memory books from the open LIMIT orders in
// storage. Orders are rested at their persisted queue position without
// matching, so queue priority is the order they joined the book, which
// can differ from id order.
//
// It must run before the engine accepts traffic. A stored order that
// crosses the book is a corrupt database, not something to match.
func RecoverBooks(ctx context.Context, store RecoveryStore, books *orderbook.Registry, log *zap.Logger) (int, error) {
	if log == nil {
		log = zap.NewNop()
	}

	open, err := store.OpenOrders(ctx)
	if err != nil {
		return 0, err
	}

	for _, rec := range open {
		o, err := rec.Order()
		if err != nil {
			return 0, fmt.Errorf("recover order %d: %w", rec.ID, err)
		}
		if err := books.GetOrCreate(o.Symbol()).Restore(o, rec.BookSeq); err != nil {
			return 0, fmt.Errorf("recover order %d: %w", rec.ID, err)
		}
	}

	log.Info("order books recovered",
		zap.Int("orders", len(open)),
		zap.Int("books", books.Len()),
	)
	return len(open), nil
}

// NewSequencer seeds the id sequencer past the highest persisted id.
func NewSequencer(ctx context.Context, store RecoveryStore) (*sequence.Sequencer, error) {
	seed, err := store.LoadNextIDSeed(ctx)
	if err != nil {
		return nil, err
	}
	return sequence.New(seed), nil
}
