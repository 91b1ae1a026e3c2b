// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/quacklock/internal/keyrate"
	"github.com/tomtom215/quacklock/internal/logging"
	"github.com/tomtom215/quacklock/internal/metrics"
)

const (
	eventKeyPrefix = "event/"

	// DefaultGCInterval is how often the value log is compacted.
	DefaultGCInterval = 10 * time.Minute

	// DefaultListLimit caps List when no limit is given.
	DefaultListLimit = 100
)

// JournalConfig configures the event journal.
type JournalConfig struct {
	// Path is the badger directory. Ignored when InMemory is set.
	Path string
	// Retention is the entry TTL. Zero keeps entries forever.
	Retention time.Duration
	// FallbackDir receives QuackLock.YYYYMMDD.log when badger writes fail.
	FallbackDir string
	InMemory    bool
	ReadOnly    bool
	GCInterval  time.Duration
}

// JournalEntry is a stored event with its key.
type JournalEntry struct {
	ID string `json:"id"`
	keyrate.DetectionEvent
}

// Journal persists detection events in badger. Keys are UUIDv7 so iteration
// order is insertion order.
type Journal struct {
	db          *badger.DB
	retention   time.Duration
	fallbackDir string
	gcInterval  time.Duration

	fallbackMu sync.Mutex
	now        func() time.Time

	closeOnce sync.Once
	closeErr  error
}

// OpenJournal opens (or creates) the journal.
func OpenJournal(cfg JournalConfig) (*Journal, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithLogger(badgerLogger{logger: logging.WithComponent("badger")})
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	} else if cfg.Path == "" {
		return nil, errors.New("journal path is required")
	}
	if cfg.ReadOnly {
		opts = opts.WithReadOnly(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	gc := cfg.GCInterval
	if gc <= 0 {
		gc = DefaultGCInterval
	}
	return &Journal{
		db:          db,
		retention:   cfg.Retention,
		fallbackDir: cfg.FallbackDir,
		gcInterval:  gc,
		now:         time.Now,
	}, nil
}

func (*Journal) Name() string  { return "journal" }
func (*Journal) Enabled() bool { return true }

// Send stores the event. If badger fails the event is appended to the
// fallback log file instead.
func (j *Journal) Send(ctx context.Context, event *keyrate.DetectionEvent) error {
	err := j.Append(event)
	if err == nil {
		metrics.RecordJournalEntry("badger")
		return nil
	}

	logging.Ctx(ctx).Warn().Err(err).Msg("journal write failed, using fallback log")
	if ferr := j.appendFallback(event); ferr != nil {
		return errors.Join(err, ferr)
	}
	metrics.RecordJournalEntry("fallback")
	return nil
}

// Append writes event under a fresh UUIDv7 key.
func (j *Journal) Append(event *keyrate.DetectionEvent) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate journal key: %w", err)
	}
	val, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return j.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(eventKeyPrefix+id.String()), val)
		if j.retention > 0 {
			e = e.WithTTL(j.retention)
		}
		return txn.SetEntry(e)
	})
}

// List returns up to limit entries, newest first.
func (j *Journal) List(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	entries := make([]JournalEntry, 0, min(limit, DefaultListLimit))

	err := j.db.View(func(txn *badger.Txn) error {
		prefix := []byte(eventKeyPrefix)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte(nil), prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			entry := JournalEntry{ID: strings.TrimPrefix(string(item.Key()), eventKeyPrefix)}
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry.DetectionEvent)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", entry.ID, err)
			}
			entries = append(entries, entry)
			if len(entries) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	return entries, nil
}

// fallbackPath returns today's fallback log file.
func (j *Journal) fallbackPath() string {
	dir := j.fallbackDir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "QuackLock."+j.now().Format("20060102")+".log")
}

func (j *Journal) appendFallback(event *keyrate.DetectionEvent) error {
	j.fallbackMu.Lock()
	defer j.fallbackMu.Unlock()

	path := j.fallbackPath()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open fallback log: %w", err)
	}
	line := FormatEventLine(event)
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("write fallback log: %w", err)
	}
	return f.Close()
}

// FormatEventLine renders an event as a single human-readable line.
func FormatEventLine(event *keyrate.DetectionEvent) string {
	return fmt.Sprintf("%s [%s] %s %s: %s",
		event.Timestamp.Format(time.RFC3339),
		event.Severity,
		event.Source,
		event.EventType,
		event.Message,
	)
}

// RunWithContext runs value log garbage collection until ctx is canceled.
// Designed for suture supervision.
func (j *Journal) RunWithContext(ctx context.Context) error {
	ticker := time.NewTicker(j.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.collectGarbage()
		}
	}
}

func (j *Journal) collectGarbage() {
	for {
		err := j.db.RunValueLogGC(0.5)
		if err == nil {
			continue
		}
		if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrGCInMemoryMode) {
			logging.Warn().Err(err).Msg("journal value log gc failed")
		}
		return
	}
}

// Close closes the database. It is safe to call more than once.
func (j *Journal) Close() error {
	j.closeOnce.Do(func() {
		j.closeErr = j.db.Close()
	})
	return j.closeErr
}

// badgerLogger routes badger's printf-style logs to zerolog.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
