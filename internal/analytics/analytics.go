// Package analytics records request-level traffic events asynchronously
// and serves aggregate queries for the admin dashboard.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Event is one recorded request decision. Blocked requests carry the
// policy that denied them; allowed requests leave it empty.
type Event struct {
	Timestamp  time.Time
	ClientKey  string
	Policy     string
	Method     string
	Path       string
	Allowed    bool
	Status     int
	ResponseMS int64
}

// Recorder batches events and writes them to PostgreSQL off the request
// path. Record never blocks: when the buffer is full the event is
// dropped and counted.
type Recorder struct {
	db     *sql.DB
	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger

	batchSize     int
	flushInterval time.Duration

	mu            sync.RWMutex
	eventsWritten int64
	eventsDropped int64
}

// Config holds configuration for the event recorder.
type Config struct {
	DB            *sql.DB
	Logger        *slog.Logger
	BufferSize    int           // event channel capacity (default 256)
	BatchSize     int           // events per INSERT batch (default 100)
	FlushInterval time.Duration // maximum time events sit unflushed (default 5s)
}

// New creates a recorder and starts its background worker.
func New(cfg Config) (*Recorder, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("analytics: database connection is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	r := &Recorder{
		db:            cfg.DB,
		events:        make(chan Event, cfg.BufferSize),
		done:          make(chan struct{}),
		logger:        cfg.Logger,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
	}

	r.wg.Add(1)
	go r.worker()

	return r, nil
}

// Record queues an event without blocking. Events are dropped when the
// buffer is full so a slow database can never stall request handling.
func (r *Recorder) Record(event Event) {
	select {
	case r.events <- event:
	default:
		r.mu.Lock()
		r.eventsDropped++
		r.mu.Unlock()
		r.logger.Warn("event buffer full, dropping event", "client_key", event.ClientKey)
	}
}

// Close stops the worker and flushes everything still buffered. It
// returns early when ctx expires.
func (r *Recorder) Close(ctx context.Context) error {
	close(r.done)

	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("analytics: shutdown timeout exceeded")
	}
}

// Stats reports how many events were written and dropped so far.
func (r *Recorder) Stats() (written, dropped int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.eventsWritten, r.eventsDropped
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	batch := make([]Event, 0, r.batchSize)
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-r.events:
			batch = append(batch, event)
			if len(batch) >= r.batchSize {
				r.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}

		case <-r.done:
			r.drainAndFlush(batch)
			return
		}
	}
}

func (r *Recorder) flush(events []Event) {
	if len(events) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error("failed to begin event batch", "error", err)
		return
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO request_events (
			timestamp, client_key, policy, method, path, allowed, status, response_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		r.logger.Error("failed to prepare event insert", "error", err)
		return
	}
	defer stmt.Close()

	for _, event := range events {
		_, err := stmt.ExecContext(ctx,
			event.Timestamp,
			event.ClientKey,
			event.Policy,
			event.Method,
			event.Path,
			event.Allowed,
			event.Status,
			event.ResponseMS,
		)
		if err != nil {
			r.logger.Error("failed to insert event", "error", err)
			// Keep going; one bad row should not sink the batch.
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("failed to commit event batch", "error", err)
		return
	}

	r.mu.Lock()
	r.eventsWritten += int64(len(events))
	r.mu.Unlock()
}

// drainAndFlush empties the channel during shutdown so queued events
// are not lost.
func (r *Recorder) drainAndFlush(batch []Event) {
	for {
		select {
		case event := <-r.events:
			batch = append(batch, event)
			if len(batch) >= r.batchSize {
				r.flush(batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				r.flush(batch)
			}
			return
		}
	}
}
