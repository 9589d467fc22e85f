package preferences

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/postforge/postforge/domain"
)

// FileStore keeps profiles in a YAML file of the form
//
//	users:
//	  alice:
//	    writing_style: storytelling
//	    tone: conversational
//
// Fields a profile omits take their default value.
type FileStore struct {
	path string

	mu    sync.RWMutex
	users map[string]domain.UserPreferences
}

type profileFile struct {
	Users map[string]yaml.Node `yaml:"users"`
}

// OpenFileStore reads path. A missing file is an empty store.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, users: map[string]domain.UserPreferences{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for id, node := range f.Users {
		p := domain.DefaultPreferences(id)
		if err := node.Decode(&p); err != nil {
			return nil, fmt.Errorf("parse %s: user %s: %w", path, id, err)
		}
		p.UserID = id
		s.users[id] = p
	}
	return s, nil
}

func (s *FileStore) Load(ctx context.Context, userID string) (domain.UserPreferences, error) {
	id, err := checkUserID(userID)
	if err != nil {
		return domain.UserPreferences{}, err
	}
	s.mu.RLock()
	p, ok := s.users[id]
	s.mu.RUnlock()
	if !ok {
		return domain.UserPreferences{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := p.Validate(); err != nil {
		return domain.UserPreferences{}, err
	}
	return p.Clone(), nil
}

// Save validates prefs and rewrites the whole file.
func (s *FileStore) Save(ctx context.Context, prefs domain.UserPreferences) error {
	id, err := checkUserID(prefs.UserID)
	if err != nil {
		return err
	}
	if err := prefs.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]domain.UserPreferences, len(s.users)+1)
	for k, v := range s.users {
		next[k] = v
	}
	p := prefs.Clone()
	p.UserID = id
	next[id] = p

	out, err := yaml.Marshal(map[string]map[string]domain.UserPreferences{"users": next})
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	s.users = next
	return nil
}
