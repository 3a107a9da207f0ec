package store

import (
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"sync"
)

// AccountStore is the durable set of registered usernames. The log holds one
// username per line in creation order; creation appends, removal rewrites
// the file without the removed name.
//
// Handlers hold the embedded mutex across the full check-replicate-apply
// sequence so a duplicate create cannot slip in between the existence check
// and the write.
type AccountStore struct {
	sync.Mutex

	path  string
	names []string
	index map[string]struct{}
}

// OpenAccountStore loads (or creates) the account log for the given replica
// id under dir.
func OpenAccountStore(dir string, id int) (*AccountStore, error) {
	s := &AccountStore{
		path:  filepath.Join(dir, fmt.Sprintf("account_list_%d.log", id)),
		index: make(map[string]struct{}),
	}
	lines, err := readLines(s.path)
	if err != nil {
		return nil, err
	}
	for _, name := range lines {
		s.names = append(s.names, name)
		s.index[name] = struct{}{}
	}
	return s, nil
}

// Create registers a username. The caller is responsible for checking
// Contains first; Create itself does not reject duplicates.
func (s *AccountStore) Create(username string) error {
	if err := appendLine(s.path, username); err != nil {
		return err
	}
	s.names = append(s.names, username)
	s.index[username] = struct{}{}
	return nil
}

// Remove deletes a username and rewrites the log without it. Removing a
// name that was never registered is a no-op.
func (s *AccountStore) Remove(username string) error {
	if _, ok := s.index[username]; !ok {
		return nil
	}
	kept := make([]string, 0, len(s.names))
	for _, name := range s.names {
		if name != username {
			kept = append(kept, name)
		}
	}
	if err := rewrite(s.path, kept); err != nil {
		return err
	}
	s.names = kept
	delete(s.index, username)
	return nil
}

// Contains reports whether a username is registered.
func (s *AccountStore) Contains(username string) bool {
	_, ok := s.index[username]
	return ok
}

// Search returns the usernames whose prefix matches pattern, case
// insensitively, in creation order. The pattern is anchored at the start of
// the name but not at the end, so "al" matches "Alice" and "ALBERT" but not
// "Hal". A pattern that does not compile is reported as an error.
func (s *AccountStore) Search(pattern string) ([]string, error) {
	re, err := regexp.Compile("(?i)^(?:" + pattern + ")")
	if err != nil {
		return nil, fmt.Errorf("failed to compile account pattern: %w", err)
	}
	var matches []string
	for _, name := range s.names {
		if re.MatchString(name) {
			matches = append(matches, name)
		}
	}
	return matches, nil
}

// All returns every registered username in creation order.
func (s *AccountStore) All() []string {
	return slices.Clone(s.names)
}

// Count returns the number of registered accounts.
func (s *AccountStore) Count() int {
	return len(s.names)
}

// Clear wipes the store, memory and log both.
func (s *AccountStore) Clear() error {
	if err := rewrite(s.path, nil); err != nil {
		return err
	}
	s.names = nil
	s.index = make(map[string]struct{})
	return nil
}
