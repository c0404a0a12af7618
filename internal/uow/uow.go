// Package uow provides the unit of work every journal mutation runs in: the
// transaction row change, FIFO lot updates, position write and cache eviction
// commit or roll back together.
package uow

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"trade-journal-go/internal/cache"
)

// Tx is the handle a unit of work passes to its body. All reads and writes
// inside the unit must go through DB.
type Tx struct {
	DB     *gorm.DB
	OpID   string
	Logger *zap.Logger

	evict map[cache.Group]struct{}
}

// Invalidate registers cache groups to evict once the unit commits.
func (t *Tx) Invalidate(groups ...cache.Group) {
	for _, g := range groups {
		t.evict[g] = struct{}{}
	}
}

// UnitOfWork runs functions atomically against the database.
type UnitOfWork struct {
	db     *gorm.DB
	cache  *cache.Cache
	locks  *keyLocks
	logger *zap.Logger
}

// New creates a UnitOfWork. c may be nil when nothing is cached.
func New(db *gorm.DB, c *cache.Cache, logger *zap.Logger) *UnitOfWork {
	return &UnitOfWork{
		db:     db,
		cache:  c,
		locks:  newKeyLocks(),
		logger: logger.Named("uow"),
	}
}

// DB returns the handle for reads outside any unit.
func (u *UnitOfWork) DB(ctx context.Context) *gorm.DB {
	return u.db.WithContext(ctx)
}

// Do runs fn in a single database transaction while holding the in-process
// locks for keys. fn's error rolls everything back. Registered cache groups
// are evicted after commit and before Do returns, so a caller that observes
// success never reads a stale aggregate.
func (u *UnitOfWork) Do(ctx context.Context, op string, keys []string, fn func(tx *Tx) error) error {
	opID := uuid.NewString()
	l := u.logger.With(zap.String("op", op), zap.String("op_id", opID))

	release := u.locks.acquire(keys)
	defer release()

	tx := &Tx{OpID: opID, Logger: l, evict: make(map[cache.Group]struct{})}
	err := u.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		tx.DB = db
		return fn(tx)
	})
	if err != nil {
		l.Debug("Unit of work rolled back", zap.Error(err))
		return err
	}

	if u.cache != nil && len(tx.evict) > 0 {
		groups := make([]cache.Group, 0, len(tx.evict))
		for g := range tx.evict {
			groups = append(groups, g)
		}
		u.cache.Invalidate(groups...)
	}
	l.Debug("Unit of work committed", zap.Int("evicted_groups", len(tx.evict)))
	return nil
}

// StockKey is the lock key serializing all bookkeeping of one stock symbol.
// Locking by stock rather than by pair keeps account reassignment, which
// touches two pairs of the same stock, under a single key.
func StockKey(symbol string) string {
	return "stock:" + strings.ToUpper(strings.TrimSpace(symbol))
}

// UserKey is the lock key serializing account changes of one user.
func UserKey(userID string) string {
	return "user:" + userID
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

// acquire locks keys in sorted order, so two units sharing keys cannot deadlock,
// and returns the release function.
func (k *keyLocks) acquire(keys []string) func() {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	unique := make([]string, 0, len(sorted))
	for _, key := range sorted {
		if len(unique) == 0 || unique[len(unique)-1] != key {
			unique = append(unique, key)
		}
	}

	held := make([]*keyLock, 0, len(unique))
	for _, key := range unique {
		k.mu.Lock()
		l, ok := k.locks[key]
		if !ok {
			l = &keyLock{}
			k.locks[key] = l
		}
		l.refs++
		k.mu.Unlock()

		l.mu.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			k.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(k.locks, unique[i])
			}
			k.mu.Unlock()
		}
	}
}
