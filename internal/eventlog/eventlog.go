// Package eventlog implements the Event Log (C4): an append-only audit
// trail with gap-free, strictly increasing sequence numbers per run,
// persisted to the shared embedded database on a batched write path that
// never blocks or fails the caller.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/huntlines/marketscout/internal/store"
	"github.com/huntlines/marketscout/internal/types"
)

// bufferCapacity bounds the number of buffered-but-unwritten events. Once
// full, emit drops the event and increments Dropped rather than blocking
// the caller.
const bufferCapacity = 4096

// flushBatchSize and flushInterval bound how long an event may sit
// buffered before it reaches the database.
const (
	flushBatchSize = 64
	flushInterval  = 250 * time.Millisecond
)

// Log is the run-scoped Event Log handle.
type Log struct {
	db     *sql.DB
	runID  string
	logger *slog.Logger

	sequence atomic.Int64
	dropped  atomic.Int64

	events chan types.Event
	wg     sync.WaitGroup
	done   chan struct{}
}

// New opens a Log bound to runID, writing through h's shared handle, and
// starts its batched background writer.
func New(h *store.Handle, runID string, logger *slog.Logger) *Log {
	l := &Log{
		db:     h.DB,
		runID:  runID,
		logger: logger.With("component", "eventlog", "run_id", runID),
		events: make(chan types.Event, bufferCapacity),
		done:   make(chan struct{}),
	}
	l.wg.Add(1)
	go l.writer()
	return l
}

// Emit assigns the next sequence number and timestamp-orders event into
// the write-behind buffer. It never blocks and never fails the caller; if
// the buffer is saturated, the event is dropped and Dropped is
// incremented.
func (l *Log) Emit(e types.Event) {
	e.RunID = l.runID
	e.Sequence = l.sequence.Add(1) - 1
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	select {
	case l.events <- e:
	default:
		l.dropped.Add(1)
		l.logger.Warn("event buffer full, dropping event", "kind", e.Kind, "sequence", e.Sequence)
	}
}

// Dropped reports how many events were discarded due to a saturated buffer.
func (l *Log) Dropped() int64 { return l.dropped.Load() }

// Close flushes any buffered events and stops the background writer.
// Calling Close again after it has returned is a no-op.
func (l *Log) Close() {
	select {
	case <-l.done:
		return
	default:
	}
	close(l.done)
	close(l.events)
	l.wg.Wait()
}

func (l *Log) writer() {
	defer l.wg.Done()

	batch := make([]types.Event, 0, flushBatchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := l.insertBatch(batch); err != nil {
			l.logger.Error("event batch insert failed", "error", err, "batch_size", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case e, ok := <-l.events:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= flushBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (l *Log) insertBatch(batch []types.Event) error {
	tx, err := l.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO events (run_id, sequence, kind, status, message, metadata, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range batch {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			meta = []byte("{}")
		}
		if _, err := stmt.Exec(e.RunID, e.Sequence, string(e.Kind), e.Status, e.Message, string(meta), e.Timestamp.UnixNano()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Query returns events for runID in insertion order, optionally filtered
// to a single kind (pass "" for all kinds).
func Query(ctx context.Context, h *store.Handle, runID string, kind types.EventKind) ([]types.Event, error) {
	query := `SELECT run_id, sequence, kind, status, message, metadata, timestamp FROM events WHERE run_id = ?`
	args := []any{runID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY sequence ASC`

	rows, err := h.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Event
	for rows.Next() {
		var e types.Event
		var kindStr, metaStr string
		var tsNano int64
		if err := rows.Scan(&e.RunID, &e.Sequence, &kindStr, &e.Status, &e.Message, &metaStr, &tsNano); err != nil {
			return nil, err
		}
		e.Kind = types.EventKind(kindStr)
		e.Timestamp = time.Unix(0, tsNano)
		e.Metadata = make(map[string]any)
		_ = json.Unmarshal([]byte(metaStr), &e.Metadata)
		out = append(out, e)
	}
	return out, rows.Err()
}
