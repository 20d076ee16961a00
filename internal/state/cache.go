// Package state holds the in-session view of every collection the client works with and
// mirrors each change to the local persistent store before the change is visible.
package state

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"medifind/internal/kvstore"
	"medifind/pkg/models"

	"github.com/sirupsen/logrus"
)

// Snapshot is an immutable view of the cache. Slices inside a snapshot are never mutated
// after it has been published.
type Snapshot struct {
	DarkMode         bool                  `json:"isDarkMode"`
	SearchHistory    []models.Medicine     `json:"searchHistory"`
	Favorites        []models.Medicine     `json:"favorites"`
	Reminders        []models.Reminder     `json:"reminders"`
	User             *models.User          `json:"user"`
	Doctors          []models.Doctor       `json:"doctors"`
	DoctorsCacheTime time.Time             `json:"doctorsCacheTime"`
	Consultations    []models.Consultation `json:"consultations"`
	Prescriptions    []models.Prescription `json:"prescriptions"`
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		SearchHistory: []models.Medicine{},
		Favorites:     []models.Medicine{},
		Reminders:     []models.Reminder{},
		Doctors:       []models.Doctor{},
		Consultations: []models.Consultation{},
		Prescriptions: []models.Prescription{},
	}
}

// Event tells subscribers which persisted key changed.
type Event struct {
	Key string    `json:"key"`
	At  time.Time `json:"at"`
}

// Cache is the single source of truth read by the UI during a session.
type Cache struct {
	kv  kvstore.Store
	log logrus.FieldLogger
	now func() time.Time

	// mu serializes mutations, persist write included.
	mu       sync.Mutex
	current  atomic.Pointer[Snapshot]
	hydrated atomic.Bool

	subMu   sync.RWMutex
	subs    map[int]func(Event)
	nextSub int
}

func New(kv kvstore.Store, log logrus.FieldLogger) *Cache {
	c := &Cache{
		kv:   kv,
		log:  log,
		now:  time.Now,
		subs: make(map[int]func(Event)),
	}
	c.current.Store(emptySnapshot())
	return c
}

// Subscribe registers fn for every committed change and returns a function removing it.
// fn runs on the mutating goroutine after the cache lock has been released.
func (c *Cache) Subscribe(fn func(Event)) func() {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Cache) publish(keys ...string) {
	c.subMu.RLock()
	fns := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.RUnlock()

	at := c.now()
	for _, key := range keys {
		for _, fn := range fns {
			fn(Event{Key: key, At: at})
		}
	}
}

type write struct {
	key   string
	value interface{}
}

// mutate runs fn on a copy of the current snapshot, persists the returned writes as one
// atomic batch and only then publishes the copy. fn must build new slices instead of
// editing shared ones. Returning no writes means nothing changed.
func (c *Cache) mutate(ctx context.Context, fn func(next *Snapshot) []write) error {
	c.mu.Lock()

	next := *c.current.Load()
	writes := fn(&next)
	if len(writes) == 0 {
		c.mu.Unlock()
		return nil
	}

	keys := make([]string, 0, len(writes))
	batch := make(map[string]string, len(writes))
	for _, w := range writes {
		raw, err := encode(w.value)
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("failed to persist %s: %w", w.key, err)
		}
		batch[w.key] = raw
		keys = append(keys, w.key)
	}
	if err := c.kv.SetMany(ctx, batch); err != nil {
		c.mu.Unlock()
		c.log.WithError(err).WithField("keys", keys).Error("❌ Failed to persist state")
		return fmt.Errorf("failed to persist %s: %w", strings.Join(keys, ", "), err)
	}

	c.current.Store(&next)
	c.mu.Unlock()

	c.publish(keys...)
	return nil
}

// Snapshot returns the latest committed state.
func (c *Cache) Snapshot() Snapshot {
	s := *c.current.Load()
	s.SearchHistory = slices.Clone(s.SearchHistory)
	s.Favorites = slices.Clone(s.Favorites)
	s.Reminders = slices.Clone(s.Reminders)
	s.Doctors = slices.Clone(s.Doctors)
	s.Consultations = slices.Clone(s.Consultations)
	s.Prescriptions = slices.Clone(s.Prescriptions)
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

func (c *Cache) DarkMode() bool { return c.current.Load().DarkMode }

func (c *Cache) SearchHistory() []models.Medicine {
	return slices.Clone(c.current.Load().SearchHistory)
}

func (c *Cache) Favorites() []models.Medicine {
	return slices.Clone(c.current.Load().Favorites)
}

func (c *Cache) IsFavorite(medicineID string) bool {
	return indexOfMedicine(c.current.Load().Favorites, medicineID) >= 0
}

func (c *Cache) Reminders() []models.Reminder {
	return slices.Clone(c.current.Load().Reminders)
}

// User returns the cached profile of the signed-in user, or nil when logged out.
func (c *Cache) User() *models.User {
	u := c.current.Load().User
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

func (c *Cache) Doctors() []models.Doctor {
	return slices.Clone(c.current.Load().Doctors)
}

func (c *Cache) DoctorsCacheTime() time.Time {
	return c.current.Load().DoctorsCacheTime
}

// DoctorsStale reports whether the cached doctor list is empty or older than ttl.
func (c *Cache) DoctorsStale(ttl time.Duration) bool {
	s := c.current.Load()
	if len(s.Doctors) == 0 || s.DoctorsCacheTime.IsZero() {
		return true
	}
	return c.now().Sub(s.DoctorsCacheTime) > ttl
}

func (c *Cache) Consultations() []models.Consultation {
	return slices.Clone(c.current.Load().Consultations)
}

func (c *Cache) Prescriptions() []models.Prescription {
	return slices.Clone(c.current.Load().Prescriptions)
}

func (c *Cache) SetDarkMode(ctx context.Context, on bool) error {
	return c.mutate(ctx, func(next *Snapshot) []write {
		next.DarkMode = on
		return []write{{KeyDarkMode, on}}
	})
}

func (c *Cache) SetSearchHistory(ctx context.Context, items []models.Medicine) error {
	return c.mutate(ctx, func(next *Snapshot) []write {
		items = cloneOrEmpty(items)
		if len(items) > HistoryLimit {
			items = items[:HistoryLimit]
		}
		next.SearchHistory = items
		return []write{{KeySearchHistory, items}}
	})
}

func (c *Cache) SetFavorites(ctx context.Context, items []models.Medicine) error {
	return c.mutate(ctx, func(next *Snapshot) []write {
		next.Favorites = cloneOrEmpty(items)
		return []write{{KeyFavorites, next.Favorites}}
	})
}

func (c *Cache) SetReminders(ctx context.Context, items []models.Reminder) error {
	return c.mutate(ctx, func(next *Snapshot) []write {
		next.Reminders = cloneOrEmpty(items)
		return []write{{KeyReminders, next.Reminders}}
	})
}

// SetUser caches the signed-in user's profile. A nil user is the logged-out state.
func (c *Cache) SetUser(ctx context.Context, user *models.User) error {
	return c.mutate(ctx, func(next *Snapshot) []write {
		if user != nil {
			u := *user
			next.User = &u
		} else {
			next.User = nil
		}
		return []write{{KeyUser, next.User}}
	})
}

// SetDoctors replaces the doctor cache and stamps the cache time.
func (c *Cache) SetDoctors(ctx context.Context, items []models.Doctor) error {
	return c.mutate(ctx, func(next *Snapshot) []write {
		next.Doctors = cloneOrEmpty(items)
		next.DoctorsCacheTime = c.now()
		return []write{
			{KeyDoctors, next.Doctors},
			{KeyDoctorsCacheTime, next.DoctorsCacheTime},
		}
	})
}

func (c *Cache) SetConsultations(ctx context.Context, items []models.Consultation) error {
	return c.mutate(ctx, func(next *Snapshot) []write {
		next.Consultations = cloneOrEmpty(items)
		return []write{{KeyConsultations, next.Consultations}}
	})
}

// MergeConsultations replaces the cached consultations with items fetched from the remote
// store, keyed by id. A cached entry updated after its fetched copy wins, and cached entries
// missing from items survive only when they were created at or after since.
func (c *Cache) MergeConsultations(ctx context.Context, items []models.Consultation, since time.Time) error {
	return c.mutate(ctx, func(next *Snapshot) []write {
		cached := make(map[string]models.Consultation, len(next.Consultations))
		for _, item := range next.Consultations {
			cached[item.ID] = item
		}

		merged := make([]models.Consultation, 0, len(items)+len(cached))
		seen := make(map[string]bool, len(items))
		for _, item := range items {
			if local, ok := cached[item.ID]; ok && local.UpdatedAt.After(item.UpdatedAt) {
				item = local
			}
			merged = append(merged, item)
			seen[item.ID] = true
		}
		for _, local := range next.Consultations {
			if !seen[local.ID] && !local.CreatedAt.Before(since) {
				merged = append(merged, local)
			}
		}

		next.Consultations = merged
		return []write{{KeyConsultations, merged}}
	})
}

func (c *Cache) SetPrescriptions(ctx context.Context, items []models.Prescription) error {
	return c.mutate(ctx, func(next *Snapshot) []write {
		next.Prescriptions = cloneOrEmpty(items)
		return []write{{KeyPrescriptions, next.Prescriptions}}
	})
}

func (c *Cache) AddReminder(ctx context.Context, r models.Reminder) error {
	return c.mutate(ctx, func(next *Snapshot) []write {
		next.Reminders = append(slices.Clone(next.Reminders), r)
		return []write{{KeyReminders, next.Reminders}}
	})
}

// UpdateReminder merges patch into the reminder with the given id. Unknown ids are ignored.
func (c *Cache) UpdateReminder(ctx context.Context, id string, patch models.ReminderPatch) error {
	return c.mutate(ctx, func(next *Snapshot) []write {
		i := slices.IndexFunc(next.Reminders, func(r models.Reminder) bool { return r.ID == id })
		if i < 0 {
			return nil
		}
		items := slices.Clone(next.Reminders)
		patch.Apply(&items[i])
		next.Reminders = items
		return []write{{KeyReminders, items}}
	})
}

func (c *Cache) DeleteReminder(ctx context.Context, id string) error {
	return c.mutate(ctx, func(next *Snapshot) []write {
		if !slices.ContainsFunc(next.Reminders, func(r models.Reminder) bool { return r.ID == id }) {
			return nil
		}
		next.Reminders = slices.DeleteFunc(slices.Clone(next.Reminders), func(r models.Reminder) bool { return r.ID == id })
		return []write{{KeyReminders, next.Reminders}}
	})
}

func (c *Cache) AddConsultation(ctx context.Context, item models.Consultation) error {
	return c.mutate(ctx, func(next *Snapshot) []write {
		next.Consultations = append(slices.Clone(next.Consultations), item)
		return []write{{KeyConsultations, next.Consultations}}
	})
}

// UpdateConsultation merges patch into the consultation with the given id.
// Unknown ids are ignored.
func (c *Cache) UpdateConsultation(ctx context.Context, id string, patch models.ConsultationPatch) error {
	return c.mutate(ctx, func(next *Snapshot) []write {
		i := slices.IndexFunc(next.Consultations, func(item models.Consultation) bool { return item.ID == id })
		if i < 0 {
			return nil
		}
		items := slices.Clone(next.Consultations)
		patch.Apply(&items[i])
		next.Consultations = items
		return []write{{KeyConsultations, items}}
	})
}

// ToggleFavorite removes the medicine from favorites when present, otherwise appends it
// flagged as favorite. It reports whether the medicine is a favorite afterwards.
func (c *Cache) ToggleFavorite(ctx context.Context, m models.Medicine) (bool, error) {
	var nowFavorite bool
	err := c.mutate(ctx, func(next *Snapshot) []write {
		if i := indexOfMedicine(next.Favorites, m.ID); i >= 0 {
			next.Favorites = slices.Delete(slices.Clone(next.Favorites), i, i+1)
			nowFavorite = false
		} else {
			m.IsFavorite = true
			next.Favorites = append(slices.Clone(next.Favorites), m)
			nowFavorite = true
		}
		return []write{{KeyFavorites, next.Favorites}}
	})
	return nowFavorite, err
}

// AddToHistory moves the medicine to the front of the search history, dropping any older
// entry with the same id and anything past HistoryLimit.
func (c *Cache) AddToHistory(ctx context.Context, m models.Medicine) error {
	return c.mutate(ctx, func(next *Snapshot) []write {
		if m.Timestamp.IsZero() {
			m.Timestamp = c.now()
		}
		items := make([]models.Medicine, 0, len(next.SearchHistory)+1)
		items = append(items, m)
		for _, existing := range next.SearchHistory {
			if existing.ID != m.ID {
				items = append(items, existing)
			}
		}
		if len(items) > HistoryLimit {
			items = items[:HistoryLimit]
		}
		next.SearchHistory = items
		return []write{{KeySearchHistory, items}}
	})
}

func (c *Cache) RemoveFromHistory(ctx context.Context, medicineID string) error {
	return c.mutate(ctx, func(next *Snapshot) []write {
		i := indexOfMedicine(next.SearchHistory, medicineID)
		if i < 0 {
			return nil
		}
		next.SearchHistory = slices.Delete(slices.Clone(next.SearchHistory), i, i+1)
		return []write{{KeySearchHistory, next.SearchHistory}}
	})
}

func (c *Cache) ClearHistory(ctx context.Context) error {
	return c.mutate(ctx, func(next *Snapshot) []write {
		next.SearchHistory = []models.Medicine{}
		return []write{{KeySearchHistory, next.SearchHistory}}
	})
}

// Logout drops the user profile and the user's copies of remote collections.
// Local-only collections (history, favorites, reminders) are kept.
func (c *Cache) Logout(ctx context.Context) error {
	return c.mutate(ctx, func(next *Snapshot) []write {
		next.User = nil
		next.Consultations = []models.Consultation{}
		next.Prescriptions = []models.Prescription{}
		return []write{
			{KeyUser, nil},
			{KeyConsultations, next.Consultations},
			{KeyPrescriptions, next.Prescriptions},
		}
	})
}

func indexOfMedicine(items []models.Medicine, id string) int {
	return slices.IndexFunc(items, func(m models.Medicine) bool { return m.ID == id })
}

func cloneOrEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return slices.Clone(items)
}
