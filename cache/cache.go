package cache

import (
	"sync"
	"time"

	"github.com/use-agent/uicheck/models"
)

// entry holds a run record with its creation timestamp.
type entry struct {
	run       models.RunStatusResponse
	createdAt time.Time
}

// Store is an in-memory store of API runs, keyed by run id.
// It is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration

	stop chan struct{}
	once sync.Once
}

// New creates a Store holding at most maxEntries runs. A background goroutine
// runs every 5 minutes to evict runs older than ttl; Close stops it.
func New(maxEntries int, ttl time.Duration) *Store {
	s := &Store{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		stop:       make(chan struct{}),
	}

	go s.cleanupLoop()
	return s
}

// Put stores run. At capacity, the oldest finished run is evicted to make
// room; running entries are only evicted when nothing else can go.
func (s *Store) Put(run models.RunStatusResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.store[run.ID]; !exists && s.maxEntries > 0 && len(s.store) >= s.maxEntries {
		s.evictOne()
	}
	s.store[run.ID] = &entry{run: run, createdAt: time.Now()}
}

// Update applies fn to the stored run and reports whether it existed.
func (s *Store) Update(id string, fn func(*models.RunStatusResponse)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.store[id]
	if !ok {
		return false
	}
	fn(&e.run)
	return true
}

// Get returns the run with id if it exists and has not expired. Running
// runs never expire.
func (s *Store) Get(id string) (models.RunStatusResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.store[id]
	if !ok {
		return models.RunStatusResponse{}, false
	}
	if s.ttl > 0 && e.run.Status != models.RunStateRunning && time.Since(e.createdAt) > s.ttl {
		return models.RunStatusResponse{}, false
	}
	return e.run, true
}

// Len returns the number of stored runs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.store)
}

// Close stops the cleanup goroutine.
func (s *Store) Close() {
	s.once.Do(func() { close(s.stop) })
}

// evictOne removes the oldest finished run, or the oldest run when all are
// still running. s.mu must be held.
func (s *Store) evictOne() {
	var (
		victim  string
		oldest  time.Time
		running = true
	)
	for id, e := range s.store {
		isRunning := e.run.Status == models.RunStateRunning
		switch {
		case victim == "",
			running && !isRunning,
			running == isRunning && e.createdAt.Before(oldest):
			victim, oldest, running = id, e.createdAt, isRunning
		}
	}
	delete(s.store, victim)
}

// evictExpired removes runs created before cutoff, except running ones.
func (s *Store) evictExpired(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.store {
		if e.createdAt.Before(cutoff) && e.run.Status != models.RunStateRunning {
			delete(s.store, id)
			n++
		}
	}
	return n
}

func (s *Store) cleanupLoop() {
	if s.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.evictExpired(time.Now().Add(-s.ttl))
		}
	}
}
