// Package store keeps the per-group results the UI shows: which groups were
// requested, in what order, and how far each one got.
package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robby/roster/internal/domain"
)

var (
	// ErrGroupNotFound indicates the group was never added.
	ErrGroupNotFound = errors.New("group not found")
	// ErrNotFetched indicates the group has no members to export yet.
	ErrNotFetched = errors.New("group has not been fetched")
)

// Status is how far a group has progressed.
type Status int

const (
	StatusPending Status = iota
	StatusFetched
	StatusExported
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFetched:
		return "fetched"
	case StatusExported:
		return "exported"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Group is a snapshot of one group's result.
type Group struct {
	Name    string
	Status  Status
	Members []domain.Member
	// Total is the count the server reported, which may differ from len(Members).
	Total   int
	Partial bool
	Path    string
	Err     error
}

// Store holds group results in the order they were requested.
// It is not safe for concurrent use.
type Store struct {
	order  []string
	groups map[string]*Group

	outputDir string
}

// New creates an empty Store.
func New() *Store {
	return &Store{groups: make(map[string]*Group)}
}

// ParseGroups splits user input into group names: one per line, trimmed,
// empty lines dropped, duplicates kept once in first-seen order.
func ParseGroups(text string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// Add registers groups as pending. A group that already exists is reset to
// pending and keeps its position. It returns the names in the order given.
func (s *Store) Add(names ...string) []string {
	added := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := s.groups[name]; !ok {
			s.order = append(s.order, name)
		}
		s.groups[name] = &Group{Name: name, Status: StatusPending, Total: -1}
		added = append(added, name)
	}
	return added
}

// SetMembers records a completed fetch.
func (s *Store) SetMembers(name string, members []domain.Member, total int, partial bool) error {
	g, ok := s.groups[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, name)
	}
	g.Status = StatusFetched
	g.Members = members
	g.Total = total
	g.Partial = partial
	g.Path = ""
	g.Err = nil
	return nil
}

// MarkExported records where the group's CSV was written.
// Returns ErrNotFetched if the group was never fetched.
func (s *Store) MarkExported(name, path string) error {
	g, ok := s.groups[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, name)
	}
	// A failed export keeps its members, so a retry can succeed.
	if g.Members == nil {
		return fmt.Errorf("%w: %s", ErrNotFetched, name)
	}
	g.Status = StatusExported
	g.Path = path
	g.Err = nil
	return nil
}

// MarkFailed records an error. Members already fetched are kept, so a failed
// export can be retried.
func (s *Store) MarkFailed(name string, err error) error {
	g, ok := s.groups[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, name)
	}
	g.Status = StatusFailed
	g.Err = err
	return nil
}

// Get returns a snapshot of one group.
func (s *Store) Get(name string) (Group, error) {
	g, ok := s.groups[name]
	if !ok {
		return Group{}, fmt.Errorf("%w: %s", ErrGroupNotFound, name)
	}
	return *g, nil
}

// GetMembers returns the members fetched for a group.
func (s *Store) GetMembers(name string) ([]domain.Member, error) {
	g, ok := s.groups[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, name)
	}
	if g.Members == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFetched, name)
	}
	return g.Members, nil
}

// Groups returns snapshots of every group in request order.
func (s *Store) Groups() []Group {
	result := make([]Group, 0, len(s.order))
	for _, name := range s.order {
		result = append(result, *s.groups[name])
	}
	return result
}

// Counts returns how many groups are in each status.
func (s *Store) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, g := range s.groups {
		counts[g.Status]++
	}
	return counts
}

// Done reports whether no group is still pending.
func (s *Store) Done() bool {
	return s.Counts()[StatusPending] == 0
}

// SetOutputDir sets the export directory chosen by the user.
func (s *Store) SetOutputDir(dir string) {
	s.outputDir = dir
}

// OutputDir returns the export directory, empty if unset.
func (s *Store) OutputDir() string {
	return s.outputDir
}

// Clear drops every group, preserving the output directory.
func (s *Store) Clear() {
	s.order = nil
	s.groups = make(map[string]*Group)
}
