// Package sqlite keeps an append-only journal of dispatch outcomes in SQLite.
package sqlite

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"candle-alerts/internal/notification"

	"github.com/oklog/ulid/v2"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
	defaultQueueSize  = 1024
)

// Config configures the journal.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/alerts.db"

	// OnCommit is called after each batch commit with its size and latency.
	OnCommit func(n int, d time.Duration)
}

// Entry is one journaled dispatch attempt.
type Entry struct {
	ID      string
	Key     string
	Title   string
	Body    string
	Outcome string
	Error   string
	At      time.Time
}

// Journal is a single-goroutine SQLite writer with transaction batching.
// RecordAlert never blocks on disk: records are queued and written by Run.
type Journal struct {
	db       *sql.DB
	queue    chan Entry
	onCommit func(int, time.Duration)

	idMu    sync.Mutex
	entropy io.Reader
}

// Open opens (or creates) the journal database with WAL mode and schema.
func Open(cfg Config) (*Journal, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	var seed int64
	_ = binary.Read(cryptorand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	slog.Info("[sqlite] opened alert journal", "path", cfg.DBPath)
	return &Journal{
		db:       db,
		queue:    make(chan Entry, defaultQueueSize),
		onCommit: cfg.OnCommit,
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(seed)), 0),
	}, nil
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// Close closes the database. Call after Run has returned.
func (j *Journal) Close() error { return j.db.Close() }

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS alerts (
			id       TEXT    PRIMARY KEY,
			key      TEXT    NOT NULL,
			title    TEXT    NOT NULL,
			body     TEXT    NOT NULL,
			outcome  TEXT    NOT NULL,
			error    TEXT,
			at_ms    INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_alerts_key_at ON alerts (key, at_ms);
	`)
	return err
}

// NewID returns a time-sortable ULID for t.
func (j *Journal) NewID(t time.Time) string {
	j.idMu.Lock()
	defer j.idMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(t.UTC()), j.entropy)
	if err != nil {
		// Monotonic entropy overflow within one millisecond; fall back to fresh entropy.
		return ulid.Make().String()
	}
	return id.String()
}

// RecordAlert queues a dispatch record. A full queue drops the record.
func (j *Journal) RecordAlert(_ context.Context, rec notification.Record) error {
	e := Entry{
		ID:      j.NewID(rec.At),
		Key:     rec.Key,
		Title:   rec.Title,
		Body:    rec.Body,
		Outcome: string(rec.Outcome),
		Error:   rec.Error,
		At:      rec.At,
	}
	select {
	case j.queue <- e:
		return nil
	default:
		return fmt.Errorf("sqlite: journal queue full, dropped %s", rec.Key)
	}
}

// Run drains the queue and inserts records in batched transactions.
// Flushes every batchSize records OR every flushDelay, whichever first.
// Blocks until ctx is cancelled, then flushes what is queued.
func (j *Journal) Run(ctx context.Context) error {
	batch := make([]Entry, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := j.insertBatch(batch); err != nil {
			slog.Error("[sqlite] batch insert error", "error", err, "records", len(batch))
		} else {
			elapsed := time.Since(start)
			slog.Debug("[sqlite] committed alerts", "records", len(batch), "elapsed", elapsed.String())
			if j.onCommit != nil {
				j.onCommit(len(batch), elapsed)
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
		drain:
			for {
				select {
				case e := <-j.queue:
					batch = append(batch, e)
				default:
					break drain
				}
			}
			flush()
			return nil

		case e := <-j.queue:
			batch = append(batch, e)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertBatch inserts a batch of records in a single transaction.
func (j *Journal) insertBatch(entries []Entry) error {
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO alerts (id, key, title, body, outcome, error, at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		var errText sql.NullString
		if e.Error != "" {
			errText = sql.NullString{String: e.Error, Valid: true}
		}
		if _, err := stmt.Exec(e.ID, e.Key, e.Title, e.Body, e.Outcome, errText, e.At.UnixMilli()); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}
