// internal/historian/historian.go
package historian

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jason-s-yu/filterbattle/internal/cache"
	"github.com/jason-s-yu/filterbattle/internal/models"
	"github.com/sirupsen/logrus"
)

// Source yields queued round records. Pop returns nil, nil when nothing
// arrived within timeout.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (*models.RoundRecord, error)
}

// Sink persists a batch of round records atomically.
type Sink interface {
	InsertRounds(ctx context.Context, recs []models.RoundRecord) error
}

// Options tunes batching. Zero values fall back to defaults.
type Options struct {
	BatchSize     int
	FlushInterval time.Duration
	PopTimeout    time.Duration
	Logger        logrus.FieldLogger
}

// Service drains the round queue into the archive in batches: a batch is
// flushed when it is full or when FlushInterval elapses, whichever is first.
type Service struct {
	source Source
	sink   Sink
	log    logrus.FieldLogger

	batchSize     int
	flushInterval time.Duration
	popTimeout    time.Duration

	batchMu sync.Mutex
	batch   []models.RoundRecord
}

func NewService(source Source, sink Sink, opts Options) *Service {
	s := &Service{
		source:        source,
		sink:          sink,
		log:           opts.Logger,
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		popTimeout:    opts.PopTimeout,
	}
	if s.batchSize <= 0 {
		s.batchSize = 20
	}
	if s.flushInterval <= 0 {
		s.flushInterval = 500 * time.Millisecond
	}
	if s.popTimeout <= 0 {
		s.popTimeout = 3 * time.Second
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	s.batch = make([]models.RoundRecord, 0, s.batchSize)
	return s
}

// Run pops records until ctx is cancelled, then flushes whatever is pending.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("filterbattle historian started.")
	defer s.log.Info("filterbattle historian shutting down.")

	go s.flushLoop(ctx)

	for {
		if ctx.Err() != nil {
			// The caller's ctx is gone; use a fresh one for the final write.
			s.flush(context.Background())
			return
		}

		rec, err := s.source.Pop(ctx, s.popTimeout)
		switch {
		case err == nil && rec != nil:
			s.append(ctx, *rec)
		case errors.Is(err, cache.ErrBadRecord):
			s.log.Warnf("Skipping queue entry: %v", err)
		case err != nil && ctx.Err() == nil:
			s.log.Errorf("Pop: %v", err)
			// Back off briefly so a dead Redis does not spin the loop.
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

func (s *Service) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Shutdown flushing belongs to Run, which uses a live context.
			if ctx.Err() != nil {
				return
			}
			s.flush(ctx)
		}
	}
}

// append adds a record to the in-memory batch and flushes if the threshold is reached.
func (s *Service) append(ctx context.Context, rec models.RoundRecord) {
	s.batchMu.Lock()
	s.batch = append(s.batch, rec)
	full := len(s.batch) >= s.batchSize
	s.batchMu.Unlock()

	if full {
		s.flush(ctx)
	}
}

// flush writes the current batch in a single transaction. A failed batch is
// logged and dropped.
func (s *Service) flush(ctx context.Context) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	if len(s.batch) == 0 {
		return
	}
	batchCopy := make([]models.RoundRecord, len(s.batch))
	copy(batchCopy, s.batch)
	s.batch = s.batch[:0]

	if err := s.sink.InsertRounds(ctx, batchCopy); err != nil {
		s.log.Errorf("flush of %d rounds failed: %v", len(batchCopy), err)
		return
	}
	s.log.Debugf("Flushed %d rounds to DB.", len(batchCopy))
}

// Pending reports how many records are buffered and not yet flushed.
func (s *Service) Pending() int {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return len(s.batch)
}
