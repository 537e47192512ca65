package identity

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	keyUserID   = "devcanvas_user_id"
	keyUserName = "devcanvas_user_name"

	// DefaultDisplayName is used until the user picks a name.
	DefaultDisplayName = "Anonymous"
)

// Identity is one participant as seen by the rest of the system. ID is
// generated once per profile and never changes; DisplayName is whatever the
// user last chose. Neither is validated for uniqueness — collisions between
// profiles are tolerated.
type Identity struct {
	ID          string
	DisplayName string
}

// Resolve loads the participant identity from the store, generating and
// persisting a fresh anonymous ID on first use.
func Resolve(s *Store) (Identity, error) {
	id, err := s.Get(keyUserID)
	switch {
	case err == nil:
	case err == ErrKeyNotFound:
		id = "anon_" + uuid.NewString()
		if err := s.Set(keyUserID, id); err != nil {
			return Identity{}, fmt.Errorf("failed to persist participant id: %w", err)
		}
	default:
		return Identity{}, err
	}

	name, err := s.Get(keyUserName)
	if err != nil {
		name = DefaultDisplayName
	}

	return Identity{ID: id, DisplayName: name}, nil
}

// SetDisplayName persists a new display name for the profile.
func SetDisplayName(s *Store, name string) error {
	if name == "" {
		name = DefaultDisplayName
	}
	return s.Set(keyUserName, name)
}
