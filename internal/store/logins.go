package store

import (
	"fmt"
	"path/filepath"
	"sync"
)

// LoginStore is the bidirectional username-to-client-uuid table of live
// sessions. The log holds one "username uuid" line per session, but only
// as a diagnostic record of the current process: sessions do not survive a
// restart, so the file is truncated on open rather than loaded. A promoted
// primary rebuilds its session view from replicated login updates, never
// from this file.
type LoginStore struct {
	sync.Mutex

	path       string
	order      []string
	byUsername map[string]string
	byUUID     map[string]string
}

// OpenLoginStore creates the login log for the given replica id under dir,
// truncating whatever a previous process left behind.
func OpenLoginStore(dir string, id int) (*LoginStore, error) {
	s := &LoginStore{
		path:       filepath.Join(dir, fmt.Sprintf("logged_in_accounts_%d.log", id)),
		byUsername: make(map[string]string),
		byUUID:     make(map[string]string),
	}
	if err := rewrite(s.path, nil); err != nil {
		return nil, err
	}
	return s, nil
}

// Login binds username to the client uuid. The caller checks both sides are
// free first; Login itself does not reject rebinding.
func (s *LoginStore) Login(username, uuid string) error {
	if err := appendLine(s.path, username+" "+uuid); err != nil {
		return err
	}
	if _, ok := s.byUsername[username]; !ok {
		s.order = append(s.order, username)
	}
	s.byUsername[username] = uuid
	s.byUUID[uuid] = username
	return nil
}

// Logoff removes the session bound to username, rewriting the log without
// it. It reports whether a session existed.
func (s *LoginStore) Logoff(username string) (bool, error) {
	uuid, ok := s.byUsername[username]
	if !ok {
		return false, nil
	}
	kept := make([]string, 0, len(s.order))
	var lines []string
	for _, u := range s.order {
		if u == username {
			continue
		}
		kept = append(kept, u)
		lines = append(lines, u+" "+s.byUsername[u])
	}
	if err := rewrite(s.path, lines); err != nil {
		return false, err
	}
	s.order = kept
	delete(s.byUsername, username)
	delete(s.byUUID, uuid)
	return true, nil
}

// IsLoggedInByUUID reports whether the client uuid has a bound username.
func (s *LoginStore) IsLoggedInByUUID(uuid string) bool {
	_, ok := s.byUUID[uuid]
	return ok
}

// IsLoggedInByUsername reports whether anyone is logged into username.
func (s *LoginStore) IsLoggedInByUsername(username string) bool {
	_, ok := s.byUsername[username]
	return ok
}

// UsernameOf returns the username bound to a client uuid.
func (s *LoginStore) UsernameOf(uuid string) (string, bool) {
	username, ok := s.byUUID[uuid]
	return username, ok
}

// UUIDOf returns the client uuid logged into username.
func (s *LoginStore) UUIDOf(username string) (string, bool) {
	uuid, ok := s.byUsername[username]
	return uuid, ok
}

// Count returns the number of live sessions.
func (s *LoginStore) Count() int {
	return len(s.byUsername)
}
