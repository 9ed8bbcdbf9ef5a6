package session

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/google/uuid"

	"github.com/dhruvbuilds/strategia-connect/internal/storage"
)

var sessionIDPattern = regexp.MustCompile(`^[0-9a-f-]{36}$`)

// Manager owns every live session. A session whose cache file survives a
// restart is resumed on first use.
type Manager struct {
	deps     Deps
	cacheDir string

	mu       sync.Mutex
	sessions map[string]*Controller
}

func NewManager(deps Deps, dataDir string) *Manager {
	return &Manager{
		deps:     deps,
		cacheDir: filepath.Join(dataDir, "sessions"),
		sessions: make(map[string]*Controller),
	}
}

// Create starts a fresh session.
func (m *Manager) Create() (*Controller, error) {
	id := uuid.New().String()
	cache, err := storage.OpenCache(m.cacheDir, id+".json")
	if err != nil {
		return nil, err
	}

	c := newController(id, m.deps, cache)
	c.start()

	m.mu.Lock()
	m.sessions[id] = c
	m.mu.Unlock()

	log.Printf("[session] created session=%s", id)
	return c, nil
}

// Get returns a live session or resumes one from its cache file.
func (m *Manager) Get(id string) (*Controller, error) {
	if !sessionIDPattern.MatchString(id) {
		return nil, ErrNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.sessions[id]; ok {
		return c, nil
	}

	if _, err := os.Stat(filepath.Join(m.cacheDir, id+".json")); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	cache, err := storage.OpenCache(m.cacheDir, id+".json")
	if err != nil {
		return nil, err
	}
	c := newController(id, m.deps, cache)
	c.start()
	m.sessions[id] = c

	log.Printf("[session] resumed session=%s view=%s", id, c.State().View)
	return c, nil
}

// Drop closes a session and forgets its cache.
func (m *Manager) Drop(id string) error {
	m.mu.Lock()
	c, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	c.Close()
	return c.cache.Remove()
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close shuts every session down, keeping their caches for resumption.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Controller, 0, len(m.sessions))
	for id, c := range m.sessions {
		sessions = append(sessions, c)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, c := range sessions {
		c.Close()
	}
}
