package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"matchbook/domain/events"
)

// RunSnapshotJob pushes a depth snapshot of every book to sink each
// interval until ctx is done. A depth of 0 publishes every level.
func (e *Engine) RunSnapshotJob(ctx context.Context, interval time.Duration, depth int, sink events.Sink) error {
	if interval <= 0 {
		return nil
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			e.publishSnapshots(DepthOrAll(depth), sink)
		}
	}
}

func (e *Engine) publishSnapshots(depth int, sink events.Sink) {
	now := e.now()
	for _, sym := range e.Symbols() {
		bids, asks := e.Snapshot(sym, depth)
		if err := sink.Emit(snapshotEvent(sym, bids, asks, now)); err != nil {
			e.log.Warn("snapshot publish failed", zap.String("symbol", sym), zap.Error(err))
		}
	}
}
