package intent

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"kbchat/internal/domain"
)

const intentsFile = "intents.yaml"

// Store keeps the intents of one knowledge base: user-created and
// auto-detected. Mutations persist to a YAML file in the data directory;
// deletion removes an intent entirely.
type Store struct {
	mu      sync.RWMutex
	dir     string
	intents map[string]domain.Intent
	now     func() time.Time
}

// OpenStore loads the intents for a knowledge-base directory, starting
// empty when no file exists yet.
func OpenStore(dir string) (*Store, error) {
	s := &Store{dir: dir, intents: make(map[string]domain.Intent), now: time.Now}
	data, err := os.ReadFile(filepath.Join(dir, intentsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read intents: %w", err)
	}
	var list []domain.Intent
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode intents: %w", err)
	}
	for _, it := range list {
		s.intents[it.ID] = it
	}
	return s, nil
}

// Create validates and stores a new intent, assigning its ID and timestamps.
func (s *Store) Create(it domain.Intent) (domain.Intent, error) {
	if it.Name == "" {
		return domain.Intent{}, fmt.Errorf("%w: intent name is required", domain.ErrInvalidConfiguration)
	}
	if it.ActionType == "" {
		it.ActionType = domain.ActionRetrieval
	}
	if !it.ActionType.Valid() {
		return domain.Intent{}, fmt.Errorf("%w: unknown action type %q", domain.ErrInvalidConfiguration, it.ActionType)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.intents {
		if existing.Name == it.Name {
			return domain.Intent{}, fmt.Errorf("intent %q already exists", it.Name)
		}
	}
	it.ID = uuid.NewString()
	it.CreatedAt = s.now()
	it.UpdatedAt = it.CreatedAt
	s.intents[it.ID] = it
	if err := s.saveLocked(); err != nil {
		delete(s.intents, it.ID)
		return domain.Intent{}, err
	}
	return it, nil
}

// Update replaces the stored intent with the same ID.
func (s *Store) Update(it domain.Intent) (domain.Intent, error) {
	if !it.ActionType.Valid() {
		return domain.Intent{}, fmt.Errorf("%w: unknown action type %q", domain.ErrInvalidConfiguration, it.ActionType)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.intents[it.ID]
	if !ok {
		return domain.Intent{}, fmt.Errorf("intent %s not found", it.ID)
	}
	it.CreatedAt = prev.CreatedAt
	it.UpdatedAt = s.now()
	s.intents[it.ID] = it
	if err := s.saveLocked(); err != nil {
		s.intents[it.ID] = prev
		return domain.Intent{}, err
	}
	return it, nil
}

// Delete removes an intent entirely.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.intents[id]
	if !ok {
		return fmt.Errorf("intent %s not found", id)
	}
	delete(s.intents, id)
	if err := s.saveLocked(); err != nil {
		s.intents[id] = prev
		return err
	}
	return nil
}

// List returns all intents ordered by creation time, newest first.
func (s *Store) List() []domain.Intent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Intent, 0, len(s.intents))
	for _, it := range s.intents {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Match returns the first enabled intent whose patterns match the message,
// or nil. Patterns are checked in List order so newer intents win.
func (s *Store) Match(message string) *domain.Intent {
	for _, it := range s.List() {
		if !it.Enabled {
			continue
		}
		if MatchesPatterns(message, it.Patterns) {
			matched := it
			return &matched
		}
	}
	return nil
}

func (s *Store) saveLocked() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	list := make([]domain.Intent, 0, len(s.intents))
	for _, it := range s.intents {
		list = append(list, it)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	data, err := yaml.Marshal(list)
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, intentsFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
