package service

import (
	"context"
	"sync"
	"time"

	"github.com/adwski/drawing-board/backend/model"
	"github.com/rs/zerolog"
)

// snapshotWriter serializes snapshot writes on one goroutine.
// Requests arriving while a write is running are merged into the next write,
// which reads the registry when it starts, so the newest state always lands last.
type snapshotWriter struct {
	store   Persister
	records func() map[string]model.RoomRecord
	logger  zerolog.Logger
	timeout time.Duration

	mx      *sync.Mutex
	waiters []chan struct{}
	closed  bool

	kick chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newSnapshotWriter(store Persister, records func() map[string]model.RoomRecord, logger *zerolog.Logger) *snapshotWriter {
	w := &snapshotWriter{
		store:   store,
		records: records,
		logger:  logger.With().Str("component", "snapshot-writer").Logger(),
		timeout: defaultPersistTimeout,
		mx:      &sync.Mutex{},
		kick:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// request schedules a write and returns a channel closed once a write
// that started after this call has finished, successfully or not.
func (w *snapshotWriter) request() <-chan struct{} {
	ch := make(chan struct{})
	w.mx.Lock()
	if w.closed {
		w.mx.Unlock()
		close(ch)
		return ch
	}
	w.waiters = append(w.waiters, ch)
	w.mx.Unlock()

	select {
	case w.kick <- struct{}{}:
	default:
	}
	return ch
}

// close flushes pending requests and stops the writer.
func (w *snapshotWriter) close() {
	w.mx.Lock()
	if w.closed {
		w.mx.Unlock()
		<-w.done
		return
	}
	w.closed = true
	w.mx.Unlock()

	close(w.stop)
	<-w.done
}

func (w *snapshotWriter) run() {
	defer close(w.done)
	for {
		select {
		case <-w.kick:
			w.flush()
		case <-w.stop:
			w.flush()
			return
		}
	}
}

func (w *snapshotWriter) flush() {
	w.mx.Lock()
	waiters := w.waiters
	w.waiters = nil
	w.mx.Unlock()
	if len(waiters) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.store.SaveSnapshot(ctx, w.records()); err != nil {
		w.logger.Error().Err(err).Msg("failed to persist rooms snapshot")
	} else {
		w.logger.Trace().Int("requests", len(waiters)).Msg("rooms snapshot persisted")
	}
	for _, ch := range waiters {
		close(ch)
	}
}
