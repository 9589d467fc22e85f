// Package preferences loads and saves user preference profiles.
package preferences

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/postforge/postforge/domain"
)

// ErrNotFound is returned when a user has no stored profile.
var ErrNotFound = errors.New("preferences not found")

// Store is a preference profile backend.
type Store interface {
	Load(ctx context.Context, userID string) (domain.UserPreferences, error)
	Save(ctx context.Context, prefs domain.UserPreferences) error
}

func checkUserID(userID string) (string, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return "", fmt.Errorf("%w: user id is required", domain.ErrInvalidPreferences)
	}
	return id, nil
}

// Fallback serves default preferences for users without a stored profile.
type Fallback struct {
	Store
}

func (f Fallback) Load(ctx context.Context, userID string) (domain.UserPreferences, error) {
	p, err := f.Store.Load(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return domain.DefaultPreferences(strings.TrimSpace(userID)), nil
	}
	return p, err
}
