// Package storage implements the single-writer durable queue described in
// spec.md §4.A: a bounded channel drained by one worker goroutine that
// batches statements into transactions, with per-statement retry on
// partial failure.
package storage

import (
	"database/sql"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	_ "github.com/mattn/go-sqlite3"
)

// Priority controls how Enqueue behaves when the queue is full.
type Priority int

const (
	// Normal submissions use a non-blocking enqueue and are dropped when
	// the queue is full.
	Normal Priority = iota
	// Critical submissions block the caller until the item is accepted
	// onto the queue.
	Critical
)

// DefaultQueueSize is the bounded channel capacity (spec.md §5).
const DefaultQueueSize = 50_000

// DefaultBatchMax is the greedy batch-gather ceiling (spec.md §4.A).
const DefaultBatchMax = 100

// Statement is one parameterized SQL write.
type Statement struct {
	SQL  string
	Args []any
}

type queueItem struct {
	stmt     Statement
	shutdown bool
}

// Writer is the sole mutator of the database. Open one per process.
type Writer struct {
	db       *sql.DB
	queue    chan queueItem
	batchMax int
	log      zerolog.Logger

	drops           atomic.Uint64
	retryFails      atomic.Uint64
	wg              sync.WaitGroup
	started         atomic.Bool
}

// Open opens the sqlite database at path with the connection settings
// spec.md §4.A/§6 require: WAL journalling, normal synchronous mode, a
// 30s busy-timeout and an in-memory temp store.
func Open(path string) (*sql.DB, error) {
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=30000&_temp_store=MEMORY&_foreign_keys=ON"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// the writer is single-threaded by design; one open connection keeps
	// sqlite's single-writer semantics honest even under the database/sql
	// pool's default behaviour.
	db.SetMaxOpenConns(1)
	return db, nil
}

// New constructs a Writer around an already-open database handle.
func New(db *sql.DB, log zerolog.Logger) *Writer {
	return &Writer{
		db:       db,
		queue:    make(chan queueItem, DefaultQueueSize),
		batchMax: DefaultBatchMax,
		log:      log.With().Str("component", "writer").Logger(),
	}
}

// Start launches the single worker goroutine. Safe to call once.
func (w *Writer) Start() {
	if w.started.Swap(true) {
		return
	}
	w.wg.Add(1)
	go w.run()
}

// Enqueue submits a write. Normal priority drops the item (incrementing
// the drop counter) when the queue is full; critical priority blocks the
// caller until the item is accepted.
func (w *Writer) Enqueue(sqlText string, args []any, priority Priority) {
	item := queueItem{stmt: Statement{SQL: sqlText, Args: args}}
	if priority == Critical {
		w.queue <- item
		return
	}
	select {
	case w.queue <- item:
	default:
		w.recordDrop()
	}
}

// Shutdown enqueues the sentinel and blocks until the worker has drained
// and committed everything remaining, then exits.
func (w *Writer) Shutdown() {
	w.queue <- queueItem{shutdown: true}
	w.wg.Wait()
}

// QueueDepth reports the current number of items waiting in the queue.
func (w *Writer) QueueDepth() int { return len(w.queue) }

// Drops reports the total number of normal-priority writes dropped since
// process start. Monotonically non-decreasing (spec.md §8).
func (w *Writer) Drops() uint64 { return w.drops.Load() }

func (w *Writer) recordDrop() {
	n := w.drops.Add(1)
	if n == 1 || n == 10 || n == 100 || n == 1000 || n%1000 == 0 {
		w.log.Warn().Uint64("total_drops", n).Msg("writer queue full, dropping normal-priority write")
	}
}

func (w *Writer) run() {
	defer w.wg.Done()
	for {
		first, ok := <-w.queue
		if !ok {
			return
		}
		if first.shutdown {
			return
		}

		batch := []queueItem{first}
	gather:
		for len(batch) < w.batchMax {
			select {
			case item := <-w.queue:
				if item.shutdown {
					w.commitBatch(batch)
					return
				}
				batch = append(batch, item)
			default:
				break gather
			}
		}
		w.commitBatch(batch)
	}
}

func (w *Writer) commitBatch(batch []queueItem) {
	if len(batch) == 0 {
		return
	}

	tx, err := w.db.Begin()
	if err != nil {
		w.log.Error().Err(err).Msg("failed to open writer transaction, falling back to per-statement retry")
		w.retryIndividually(batch)
		return
	}

	for _, item := range batch {
		if _, err := tx.Exec(item.stmt.SQL, item.stmt.Args...); err != nil {
			_ = tx.Rollback()
			w.retryIndividually(batch)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		w.log.Error().Err(err).Msg("failed to commit writer batch, falling back to per-statement retry")
		w.retryIndividually(batch)
	}
}

// retryIndividually commits each statement in its own transaction so one
// poisonous row cannot starve the rest of the batch (spec.md §4.A).
func (w *Writer) retryIndividually(batch []queueItem) {
	for _, item := range batch {
		if _, err := w.db.Exec(item.stmt.SQL, item.stmt.Args...); err != nil {
			n := w.retryFails.Add(1)
			ev := w.log.Debug()
			switch {
			case n >= 25:
				ev = w.log.Error()
			case n >= 5:
				ev = w.log.Warn()
			}
			ev.Err(err).Str("sql", item.stmt.SQL).Msg("writer statement failed, dropping row")
		}
	}
}
