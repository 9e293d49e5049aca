package broadcaster

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	exitwal "matchbook/infra/wal/exit"
)

// Publisher delivers one message to the event bus.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
	Close() error
}

type Config struct {
	Interval   time.Duration
	MaxRetries uint32
}

// Broadcaster relays exit WAL records to a Publisher in sequence order.
type Broadcaster struct {
	wal *exitwal.ExitWAL
	pub Publisher
	cfg Config
	log *zap.Logger
}

var errStopPass = errors.New("stop pass")

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(w *exitwal.ExitWAL, pub Publisher, cfg Config, log *zap.Logger) *Broadcaster {
	if cfg.Interval <= 0 {
		cfg.Interval = 250 * time.Millisecond
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{wal: w, pub: pub, cfg: cfg, log: log}
}

// ------------------------------------------------
// LOOP
// ------------------------------------------------

// Run relays on every tick until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) error {
	b.log.Info("broadcaster started", zap.Duration("interval", b.cfg.Interval))

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.log.Info("broadcaster stopped")
			return nil
		case <-ticker.C:
			if _, err := b.RelayOnce(ctx); err != nil {
				b.log.Error("relay pass failed", zap.Error(err))
			}
		}
	}
}

// ------------------------------------------------
// RELAY
// ------------------------------------------------

// RelayOnce publishes pending records until one fails, then truncates what
// was acknowledged. A failed publish ends the pass so later events never
// overtake it; the record is retried next pass until MaxRetries is spent,
// after which it is parked as FAILED.
func (b *Broadcaster) RelayOnce(ctx context.Context) (int, error) {
	sent := 0
	err := b.wal.ScanPending(func(rec exitwal.Record) error {
		if rec.Retries >= b.cfg.MaxRetries {
			b.log.Warn("event parked after retries",
				zap.Uint64("seq", rec.Seq),
				zap.Uint32("retries", rec.Retries),
			)
			return b.wal.MarkFailed(rec.Seq)
		}

		if err := b.wal.MarkSent(rec.Seq); err != nil {
			return err
		}
		if err := b.pub.Publish(ctx, partitionKey(rec.Payload), rec.Payload); err != nil {
			b.log.Warn("publish failed",
				zap.Uint64("seq", rec.Seq),
				zap.Uint32("attempt", rec.Retries+1),
				zap.Error(err),
			)
			return errStopPass
		}
		if err := b.wal.MarkAcked(rec.Seq); err != nil {
			return err
		}
		sent++
		return nil
	})
	if err != nil && !errors.Is(err, errStopPass) {
		return sent, err
	}

	if _, err := b.wal.TruncateAcked(); err != nil {
		return sent, err
	}
	return sent, nil
}

// partitionKey keys messages by symbol so one symbol's events stay ordered
// on one partition. The engine appends them to the WAL in commit order and
// a pass stops at the first failed publish, so that order survives.
func partitionKey(payload []byte) []byte {
	var head struct {
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(payload, &head); err != nil || head.Symbol == "" {
		return nil
	}
	return []byte(head.Symbol)
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.pub.Close()
}
