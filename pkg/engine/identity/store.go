package identity

import "github.com/DrSkyle/idcreport/pkg/engine/model"

// Store is the in-process identity cache for one run. Entries are only
// inserted after a successful resolution, so a missing key means "not
// yet resolved" or "resolution failed"; failures are never stored and
// a later lookup goes back to the backend.
type Store struct {
	users  map[string]model.User
	groups map[string]model.Group
}

// NewStore returns an empty cache. It is rebuilt from scratch on every
// invocation; nothing is persisted between runs.
func NewStore() *Store {
	return &Store{
		users:  make(map[string]model.User),
		groups: make(map[string]model.Group),
	}
}

// User returns the cached user entry if present.
func (s *Store) User(id string) (model.User, bool) {
	u, ok := s.users[id]
	return u, ok
}

// PutUser caches a successfully resolved user.
func (s *Store) PutUser(id string, u model.User) {
	s.users[id] = u
}

// Group returns the cached group entry if present.
func (s *Store) Group(id string) (model.Group, bool) {
	g, ok := s.groups[id]
	return g, ok
}

// PutGroup caches a successfully resolved group.
func (s *Store) PutGroup(id string, g model.Group) {
	s.groups[id] = g
}

// Sizes reports the cache population for diagnostics.
func (s *Store) Sizes() (users, groups int) {
	return len(s.users), len(s.groups)
}
