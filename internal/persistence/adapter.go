package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/storage"
	"github.com/fjod/storefront/pkg/logger"
	"go.uber.org/zap"
)

const (
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = 100 * time.Millisecond
	DefaultBackupMaxAge = 24 * time.Hour

	// DefaultOperationTimeout bounds one Load, Save or Clear, retries included.
	DefaultOperationTimeout = 5 * time.Second

	backupVersion = "1.0"
	backupSuffix  = ":backup"
)

// LoadResult describes what Load found in storage.
type LoadResult struct {
	Lines    []domain.CartLine
	Dropped  int  // invalid records discarded
	Corrupt  bool // the stored blob could not be decoded at all
	Restored bool // lines came from the backup copy
}

// SaveResult reports whether the write reached the backing store.
type SaveResult struct {
	Degraded bool
	Retries  int
}

type backupEnvelope struct {
	Timestamp int64           `json:"timestamp"`
	Version   string          `json:"version"`
	Data      json.RawMessage `json:"data"`
}

// Adapter persists one cart as a single blob under a fixed key and keeps one backup
// copy of the previous successful snapshot. Storage failures never reach the caller:
// after retries are exhausted the adapter keeps the cart in memory for the rest of
// its lifetime and reports Degraded.
type Adapter struct {
	store        storage.BlobStore
	key          string
	backupKey    string
	maxRetries   int
	retryBackoff time.Duration
	backupMaxAge time.Duration
	opTimeout    time.Duration
	now          func() time.Time
	log          *zap.Logger

	degraded bool
	fallback []byte
	lastGood []byte
}

type Option func(*Adapter)

func WithMaxRetries(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.maxRetries = n
		}
	}
}

func WithRetryBackoff(d time.Duration) Option {
	return func(a *Adapter) { a.retryBackoff = d }
}

func WithBackupMaxAge(d time.Duration) Option {
	return func(a *Adapter) { a.backupMaxAge = d }
}

// WithOperationTimeout sets the time budget of each storage operation; zero removes it.
func WithOperationTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.opTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Adapter) { a.log = logger.OrNop(l) }
}

func NewAdapter(store storage.BlobStore, key string, opts ...Option) *Adapter {
	a := &Adapter{
		store:        store,
		key:          key,
		backupKey:    key + backupSuffix,
		maxRetries:   DefaultMaxRetries,
		retryBackoff: DefaultRetryBackoff,
		backupMaxAge: DefaultBackupMaxAge,
		opTimeout:    DefaultOperationTimeout,
		now:          time.Now,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With(zap.String("cart_key", key))
	return a
}

func (a *Adapter) Key() string { return a.key }

func (a *Adapter) BackupKey() string { return a.backupKey }

// Degraded reports whether the adapter has fallen back to in-memory storage.
func (a *Adapter) Degraded() bool { return a.degraded }

func (a *Adapter) Load(ctx context.Context) LoadResult {
	log := logger.WithContext(ctx, a.log)
	ctx, cancel := a.detach(ctx)
	defer cancel()

	if a.degraded {
		return a.loadFallback(log)
	}

	data, err := a.store.Get(ctx, a.key)
	if errors.Is(err, storage.ErrBlobNotFound) {
		return LoadResult{Lines: []domain.CartLine{}}
	}
	if err != nil {
		log.Error("cart storage unavailable, keeping cart in memory", zap.Error(err))
		a.degrade(nil)
		return LoadResult{Lines: []domain.CartLine{}}
	}

	lines, dropped, err := domain.DecodeLines(data)
	if err != nil {
		log.Warn("corrupt cart data discarded", zap.Error(err))
		a.remove(ctx, a.key)

		restored, ok := a.restoreBackup(ctx, log)
		if !ok {
			return LoadResult{Lines: []domain.CartLine{}, Corrupt: true}
		}
		a.Save(ctx, restored)
		return LoadResult{Lines: restored, Corrupt: true, Restored: true}
	}

	if dropped > 0 {
		log.Warn("invalid cart records dropped", zap.Int("dropped", dropped), zap.Int("kept", len(lines)))
		a.Save(ctx, lines)
	} else {
		a.lastGood = data
	}
	return LoadResult{Lines: lines, Dropped: dropped}
}

func (a *Adapter) loadFallback(log *zap.Logger) LoadResult {
	if a.fallback == nil {
		return LoadResult{Lines: []domain.CartLine{}}
	}
	lines, dropped, err := domain.DecodeLines(a.fallback)
	if err != nil {
		log.Error("in-memory cart unreadable", zap.Error(err))
		return LoadResult{Lines: []domain.CartLine{}, Corrupt: true}
	}
	return LoadResult{Lines: lines, Dropped: dropped}
}

// Save writes the entire line list. It never fails: on persistent write errors the
// list is kept in memory and the result is marked Degraded.
func (a *Adapter) Save(ctx context.Context, lines []domain.CartLine) SaveResult {
	log := logger.WithContext(ctx, a.log)
	ctx, cancel := a.detach(ctx)
	defer cancel()

	data, err := domain.EncodeLines(lines)
	if err != nil {
		log.Error("cart could not be serialized", zap.Error(err))
		return SaveResult{Degraded: a.degraded}
	}

	if a.degraded {
		a.fallback = data
		return SaveResult{Degraded: true}
	}

	a.writeBackup(ctx, log)

	var lastErr error
	for attempt := 1; attempt <= a.maxRetries; attempt++ {
		if lastErr = a.store.Set(ctx, a.key, data); lastErr == nil {
			a.lastGood = data
			return SaveResult{Retries: attempt - 1}
		}
		log.Warn("cart save attempt failed", zap.Int("attempt", attempt), zap.Error(lastErr))
		if attempt < a.maxRetries {
			a.wait(ctx, time.Duration(attempt)*a.retryBackoff)
		}
	}

	// the backup may be what fills the quota; give up one level of restore to keep the cart
	a.remove(ctx, a.backupKey)
	if lastErr = a.store.Set(ctx, a.key, data); lastErr == nil {
		a.lastGood = data
		return SaveResult{Retries: a.maxRetries}
	}

	log.Error("cart persistence degraded to memory", zap.Error(lastErr))
	a.degrade(data)
	return SaveResult{Degraded: true, Retries: a.maxRetries}
}

// Clear removes the stored blob.
func (a *Adapter) Clear(ctx context.Context) {
	a.fallback = nil
	a.lastGood = nil
	if a.degraded {
		return
	}
	ctx, cancel := a.detach(ctx)
	defer cancel()
	a.remove(ctx, a.key)
}

// detach separates storage work from the caller's cancellation. A request that ends
// mid-write is not a storage failure and must not push the cart into memory.
func (a *Adapter) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if a.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.opTimeout)
}

func (a *Adapter) degrade(data []byte) {
	a.degraded = true
	a.fallback = data
}

func (a *Adapter) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (a *Adapter) remove(ctx context.Context, key string) {
	if err := a.store.Delete(ctx, key); err != nil {
		logger.WithContext(ctx, a.log).Warn("failed to delete cart blob", zap.String("key", key), zap.Error(err))
	}
}

func (a *Adapter) writeBackup(ctx context.Context, log *zap.Logger) {
	if a.lastGood == nil {
		return
	}
	env, err := json.Marshal(backupEnvelope{
		Timestamp: a.now().UnixMilli(),
		Version:   backupVersion,
		Data:      a.lastGood,
	})
	if err != nil {
		log.Warn("cart backup could not be serialized", zap.Error(err))
		return
	}
	if err := a.store.Set(ctx, a.backupKey, env); err != nil {
		log.Warn("cart backup not written", zap.Error(err))
	}
}

func (a *Adapter) restoreBackup(ctx context.Context, log *zap.Logger) ([]domain.CartLine, bool) {
	data, err := a.store.Get(ctx, a.backupKey)
	if err != nil {
		if !errors.Is(err, storage.ErrBlobNotFound) {
			log.Warn("cart backup unreadable", zap.Error(err))
		}
		return nil, false
	}

	lines, err := a.decodeBackup(data)
	if err != nil {
		log.Warn("cart backup rejected", zap.Error(err))
		return nil, false
	}
	log.Info("cart restored from backup", zap.Int("lines", len(lines)))
	return lines, true
}

func (a *Adapter) decodeBackup(data []byte) ([]domain.CartLine, error) {
	var env backupEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid backup envelope: %w", err)
	}
	if len(env.Data) == 0 {
		return nil, errors.New("backup has no data")
	}
	age := a.now().Sub(time.UnixMilli(env.Timestamp))
	if age > a.backupMaxAge {
		return nil, fmt.Errorf("backup too old: %s", age.Round(time.Second))
	}
	lines, _, err := domain.DecodeLines(env.Data)
	if err != nil {
		return nil, err
	}
	return lines, nil
}
