// Package batch implements the Record-Batch Writer (C5): a batched
// columnar sink over the fixed Fetch-Result schema, backed by
// github.com/parquet-go/parquet-go.
package batch

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/parquet-go/parquet-go"

	"github.com/huntlines/marketscout/internal/types"
)

// rowGroupTarget is the row-group size target: flush occurs at this many
// buffered rows, and once more for any remainder when Close drains the
// mailbox. The Writer has no separate explicit flush operation.
const rowGroupTarget = 1000

// mailboxCapacity bounds the writer's append mailbox. Appenders suspend
// (block) once it is full, transitively rate-limiting the worker pool
// under a slow sink per the spec's backpressure requirement.
const mailboxCapacity = 2000

// Writer is the single-owner mailbox for Record-Batch rows. Exactly one
// goroutine drains the mailbox and writes to the underlying Parquet file;
// every other goroutine only ever sends.
type Writer struct {
	file   *os.File
	pw     *parquet.GenericWriter[types.RecordRow]
	rows   chan types.RecordRow
	done   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	err    error
	count  int
}

// Open creates (or truncates) the Parquet file at path and starts the
// background drain goroutine.
func Open(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, &types.WriterError{Op: "open", Err: err}
	}

	pw := parquet.NewGenericWriter[types.RecordRow](f,
		parquet.Compression(&parquet.Snappy),
	)

	w := &Writer{
		file: f,
		pw:   pw,
		rows: make(chan types.RecordRow, mailboxCapacity),
		done: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.drain()
	return w, nil
}

// Append enqueues a Fetch-Result as a row. It suspends the caller when
// the mailbox is full, which is the writer's only back-pressure
// mechanism — there is no separate buffer-full error. A cancelled ctx
// aborts the enqueue without writing a row, so a task cancelled mid-flight
// never produces output.
func (w *Writer) Append(ctx context.Context, r types.FetchResult) error {
	// Checked first so a closed writer is never offered a send on its
	// already-closed mailbox.
	select {
	case <-w.done:
		return &types.WriterError{Op: "append", Err: fmt.Errorf("writer closed")}
	default:
	}

	select {
	case w.rows <- types.NewRecordRow(r):
		return nil
	case <-w.done:
		return &types.WriterError{Op: "append", Err: fmt.Errorf("writer closed")}
	case <-ctx.Done():
		return &types.WriterError{Op: "append", Err: ctx.Err()}
	}
}

func (w *Writer) drain() {
	defer w.wg.Done()

	buf := make([]types.RecordRow, 0, rowGroupTarget)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		if _, err := w.pw.Write(buf); err != nil {
			w.recordErr(&types.WriterError{Op: "write", Err: err})
		} else if err := w.pw.Flush(); err != nil {
			w.recordErr(&types.WriterError{Op: "flush", Err: err})
		} else {
			w.mu.Lock()
			w.count += len(buf)
			w.mu.Unlock()
		}
		buf = buf[:0]
	}

	for row := range w.rows {
		buf = append(buf, row)
		if len(buf) >= rowGroupTarget {
			flush()
		}
	}
	flush()
}

func (w *Writer) recordErr(err error) {
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.mu.Unlock()
}

// Close flushes any buffered rows, finalizes the Parquet footer, and
// closes the underlying file. File I/O errors here are fatal for the run.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return w.err
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	close(w.rows)
	w.wg.Wait()

	if err := w.pw.Close(); err != nil {
		w.recordErr(&types.WriterError{Op: "close", Err: err})
	}
	if err := w.file.Close(); err != nil {
		w.recordErr(&types.WriterError{Op: "close", Err: err})
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// RowCount reports how many rows have been durably written so far.
func (w *Writer) RowCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}
