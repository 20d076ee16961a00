package state

import (
	"context"
	"time"

	"medifind/pkg/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Hydrate loads every collection from the persistent store into the cache. It never fails:
// missing keys keep their defaults, unreadable values are logged and replaced by defaults,
// and malformed list elements are dropped. Only the first call has any effect.
func (c *Cache) Hydrate(ctx context.Context) {
	if !c.hydrated.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	next := *emptySnapshot()

	var g errgroup.Group
	g.Go(func() error {
		next.DarkMode = loadValue(ctx, c, KeyDarkMode, false)
		return nil
	})
	g.Go(func() error {
		next.SearchHistory = loadList(ctx, c, KeySearchHistory, validMedicine)
		if len(next.SearchHistory) > HistoryLimit {
			next.SearchHistory = next.SearchHistory[:HistoryLimit]
		}
		return nil
	})
	g.Go(func() error {
		next.Favorites = loadList(ctx, c, KeyFavorites, validMedicine)
		return nil
	})
	g.Go(func() error {
		next.Reminders = loadList(ctx, c, KeyReminders, func(r models.Reminder) bool { return r.ID != "" })
		return nil
	})
	g.Go(func() error {
		next.User = loadValue[*models.User](ctx, c, KeyUser, nil)
		if next.User != nil && next.User.ID == "" {
			next.User = nil
		}
		return nil
	})
	g.Go(func() error {
		next.Doctors = loadList(ctx, c, KeyDoctors, func(d models.Doctor) bool { return d.ID != "" })
		return nil
	})
	g.Go(func() error {
		next.DoctorsCacheTime = loadValue(ctx, c, KeyDoctorsCacheTime, time.Time{})
		return nil
	})
	g.Go(func() error {
		next.Consultations = loadList(ctx, c, KeyConsultations, func(item models.Consultation) bool {
			return item.ID != "" && item.Status.Valid()
		})
		return nil
	})
	g.Go(func() error {
		next.Prescriptions = loadList(ctx, c, KeyPrescriptions, func(p models.Prescription) bool { return p.ID != "" })
		return nil
	})
	_ = g.Wait()

	c.current.Store(&next)
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"history":       len(next.SearchHistory),
		"favorites":     len(next.Favorites),
		"reminders":     len(next.Reminders),
		"doctors":       len(next.Doctors),
		"consultations": len(next.Consultations),
		"prescriptions": len(next.Prescriptions),
	}).Info("✅ State hydrated")

	c.publish(KeyHydrated)
}

// Hydrated reports whether Hydrate has run.
func (c *Cache) Hydrated() bool { return c.hydrated.Load() }

func validMedicine(m models.Medicine) bool { return m.ID != "" }

func loadValue[T any](ctx context.Context, c *Cache, key string, def T) T {
	raw, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("⚠️ Failed to read persisted state")
		return def
	}
	if !ok {
		return def
	}
	v, err := decodeValue(raw, def)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("⚠️ Discarding unreadable persisted state")
	}
	return v
}

func loadList[T any](ctx context.Context, c *Cache, key string, keep func(T) bool) []T {
	raw, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("⚠️ Failed to read persisted state")
		return []T{}
	}
	if !ok {
		return []T{}
	}
	items, dropped, err := decodeList(raw, keep)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("⚠️ Discarding unreadable persisted state")
		return []T{}
	}
	if dropped > 0 {
		c.log.WithFields(logrus.Fields{"key": key, "dropped": dropped}).Warn("⚠️ Dropped malformed persisted entries")
	}
	return items
}
