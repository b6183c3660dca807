package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig holds configuration for the disk cache
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM (tests)
	InMemory bool

	// TTL applies when Set is called with ttl 0
	TTL time.Duration

	// GCInterval is how often value log garbage collection runs; 0 disables it
	GCInterval time.Duration

	Logger *slog.Logger
}

// BadgerCache implements persistent caching on BadgerDB.
// Expiry is enforced by badger's per-entry TTL.
type BadgerCache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger

	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// badgerLogger adapts slog.Logger to badger's Logger interface
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadger opens (creating if needed) a disk cache. Callers must Close it.
func OpenBadger(cfg BadgerConfig) (*BadgerCache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("cache path is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache dir %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(&badgerLogger{logger: cfg.Logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	c := &BadgerCache{
		db:     db,
		ttl:    cfg.TTL,
		logger: cfg.Logger,
		stop:   make(chan struct{}),
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		c.wg.Add(1)
		go c.runGC(cfg.GCInterval)
	}
	return c, nil
}

// Get retrieves a value; expired and missing keys both report false
func (c *BadgerCache) Get(key string) ([]byte, bool) {
	var out []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.logger.Debug("cache read failed", "error", err)
		}
		return nil, false
	}
	return out, true
}

// GetWithTTL retrieves a value and its remaining lifetime
func (c *BadgerCache) GetWithTTL(key string) ([]byte, time.Duration, bool) {
	var (
		out       []byte
		expiresAt uint64
	)
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		expiresAt = item.ExpiresAt()
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.logger.Debug("cache read failed", "error", err)
		}
		return nil, 0, false
	}

	if expiresAt == 0 {
		return out, 0, true
	}
	// Badger stores expiry in whole seconds
	remaining := time.Until(time.Unix(int64(expiresAt), 0))
	if remaining <= 0 {
		return nil, 0, false
	}
	return out, remaining, true
}

// Set stores a value with the given TTL (0 = default)
func (c *BadgerCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), value).WithTTL(ttl))
	})
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

// Delete removes a value
func (c *BadgerCache) Delete(key string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// Clear removes every value
func (c *BadgerCache) Clear() error {
	if err := c.db.DropAll(); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Close stops garbage collection and closes the database
func (c *BadgerCache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)
		c.wg.Wait()
		err = c.db.Close()
	})
	return err
}

func (c *BadgerCache) runGC(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			// RunValueLogGC rewrites at most one file per call; loop until nothing is left
			for c.db.RunValueLogGC(0.5) == nil {
			}
		}
	}
}
