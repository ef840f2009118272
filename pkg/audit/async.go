package audit

import (
	"context"
	"sync"
	"time"
)

// AsyncOptions tunes an AsyncWriter.
type AsyncOptions struct {
	BufferSize     int           // queued events before Store falls back to a synchronous write
	BatchSize      int           // events per StoreBatch call
	BatchTimeout   time.Duration // max time a partial batch waits
	StorageTimeout time.Duration // per-batch write timeout
	OnError        func(err error, events []Event)
}

// AsyncWriter queues events and writes them in batches from a background goroutine,
// keeping journal I/O off the ledger's request path.
type AsyncWriter struct {
	bw      BatchWriter
	opts    AsyncOptions
	queue   chan Event
	done    chan struct{}
	closing sync.Once
	wg      sync.WaitGroup
}

// NewAsyncWriter starts the batching goroutine. Call Close to flush and stop it.
func NewAsyncWriter(bw BatchWriter, opts AsyncOptions) *AsyncWriter {
	if bw == nil {
		panic("audit: batch writer cannot be nil")
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = 100 * time.Millisecond
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = 5 * time.Second
	}
	if opts.OnError == nil {
		opts.OnError = func(error, []Event) {}
	}

	w := &AsyncWriter{
		bw:    bw,
		opts:  opts,
		queue: make(chan Event, opts.BufferSize),
		done:  make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Store enqueues event. When the queue is full the event is written synchronously.
func (w *AsyncWriter) Store(ctx context.Context, event Event) error {
	select {
	case <-w.done:
		return ErrStorageNotAvailable
	default:
	}
	select {
	case w.queue <- event:
		return nil
	default:
		return w.bw.StoreBatch(ctx, []Event{event})
	}
}

func (w *AsyncWriter) run() {
	defer w.wg.Done()

	batch := make([]Event, 0, w.opts.BatchSize)
	ticker := time.NewTicker(w.opts.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), w.opts.StorageTimeout)
		defer cancel()
		if err := w.bw.StoreBatch(ctx, batch); err != nil {
			w.opts.OnError(err, append([]Event(nil), batch...))
		}
		batch = batch[:0]
	}

	for {
		select {
		case e := <-w.queue:
			batch = append(batch, e)
			if len(batch) >= w.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.done:
			for {
				select {
				case e := <-w.queue:
					batch = append(batch, e)
					if len(batch) >= w.opts.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close stops accepting events and flushes what is queued, bounded by ctx.
func (w *AsyncWriter) Close(ctx context.Context) error {
	w.closing.Do(func() { close(w.done) })

	finished := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
