// Package memory is an in-process studyauth.UserStore for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/studyauth"
)

// UserStore keeps users in maps guarded by a single RWMutex.
type UserStore struct {
	mu         sync.RWMutex
	byID       map[string]*studyauth.User
	byEmail    map[string]string
	byProvider map[string]string
	now        func() time.Time
}

var _ studyauth.UserStore = (*UserStore)(nil)

func NewUserStore() *UserStore {
	return &UserStore{
		byID:       make(map[string]*studyauth.User),
		byEmail:    make(map[string]string),
		byProvider: make(map[string]string),
		now:        time.Now,
	}
}

func providerKey(provider, providerUserID string) string {
	return provider + "\x00" + providerUserID
}

func (s *UserStore) FindUserByEmail(_ context.Context, email string) (*studyauth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(s.byEmail[email])
}

func (s *UserStore) FindUserByID(_ context.Context, id string) (*studyauth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(id)
}

func (s *UserStore) FindUserByProvider(_ context.Context, provider, providerUserID string) (*studyauth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(s.byProvider[providerKey(provider, providerUserID)])
}

func (s *UserStore) lookup(id string) (*studyauth.User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, studyauth.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (s *UserStore) CreateUser(_ context.Context, user *studyauth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[user.ID]; ok {
		return studyauth.ErrUserExists
	}
	if _, ok := s.byEmail[user.Email]; ok {
		return studyauth.ErrUserExists
	}
	if user.HasExternalIdentity() {
		if _, ok := s.byProvider[providerKey(user.Provider, user.ProviderUserID)]; ok {
			return studyauth.ErrUserExists
		}
	}

	clone := *user
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = s.now()
	}
	if clone.UpdatedAt.IsZero() {
		clone.UpdatedAt = clone.CreatedAt
	}
	s.byID[clone.ID] = &clone
	s.byEmail[clone.Email] = clone.ID
	if clone.HasExternalIdentity() {
		s.byProvider[providerKey(clone.Provider, clone.ProviderUserID)] = clone.ID
	}
	return nil
}

func (s *UserStore) UpdateUser(_ context.Context, id string, update studyauth.UserUpdate) (*studyauth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[id]
	if !ok {
		return nil, studyauth.ErrUserNotFound
	}
	next := *current
	apply(&next.PasswordHash, update.PasswordHash)
	apply(&next.DisplayName, update.DisplayName)
	apply(&next.AvatarURL, update.AvatarURL)
	apply(&next.Provider, update.Provider)
	apply(&next.ProviderUserID, update.ProviderUserID)
	apply(&next.RefreshSecretHash, update.RefreshSecretHash)

	oldKey := providerKey(current.Provider, current.ProviderUserID)
	newKey := providerKey(next.Provider, next.ProviderUserID)
	if next.HasExternalIdentity() && newKey != oldKey {
		if owner, taken := s.byProvider[newKey]; taken && owner != id {
			return nil, studyauth.ErrUserExists
		}
	}
	if current.HasExternalIdentity() && newKey != oldKey {
		delete(s.byProvider, oldKey)
	}
	if next.HasExternalIdentity() {
		s.byProvider[newKey] = id
	}

	next.UpdatedAt = s.now()
	s.byID[id] = &next
	clone := next
	return &clone, nil
}

// Len reports the number of stored users.
func (s *UserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func apply(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
