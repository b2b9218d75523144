// Package share answers access-control queries against the set of directional
// share grants loaded at startup. The store is read-only after construction,
// so concurrent readers need no locking; a future grant CRUD API must add a
// read-write lock here.
package share

import (
	"sort"
	"strings"

	"github.com/foxdrive/foxdrive-go/types"
	"github.com/foxdrive/foxdrive-go/vpath"
)

// Store holds the process-wide share grants. Comparison of usernames and
// grant paths is case-insensitive throughout.
type Store struct {
	grants       []types.ShareGrant
	writeEnabled bool
}

// NewStore normalizes grant paths once up front and keeps the slice immutable
// for the lifetime of the process.
func NewStore(grants []types.ShareGrant, sharedWriteEnabled bool) *Store {
	normalized := make([]types.ShareGrant, 0, len(grants))
	for _, g := range grants {
		g.Path = vpath.Normalize(g.Path)
		normalized = append(normalized, g)
	}
	return &Store{grants: normalized, writeEnabled: sharedWriteEnabled}
}

// SendersFor returns the distinct users who have at least one grant directed
// at toUser, sorted by name.
func (s *Store) SendersFor(toUser string) []string {
	seen := make(map[string]string)
	for _, g := range s.grants {
		if strings.EqualFold(g.To, toUser) {
			seen[strings.ToLower(g.From)] = g.From
		}
	}
	senders := make([]string, 0, len(seen))
	for _, name := range seen {
		senders = append(senders, name)
	}
	sort.Strings(senders)
	return senders
}

// CanRead reports whether caller may read owner's relPath. Owners always read
// their own tree; otherwise any structurally matching grant suffices.
func (s *Store) CanRead(caller, owner, relPath string) bool {
	if strings.EqualFold(caller, owner) {
		return true
	}
	return s.findGrant(owner, caller, relPath)
}

// CanWrite is the same grant lookup as CanRead, additionally gated by the
// global write-enable flag. Callers are never denied writes to their own tree.
func (s *Store) CanWrite(caller, owner, relPath string) bool {
	if strings.EqualFold(caller, owner) {
		return true
	}
	if !s.writeEnabled {
		return false
	}
	return s.findGrant(owner, caller, relPath)
}

// findGrant scans all grants for the (owner -> caller) pair and accepts the
// first structural match. An empty grant path grants the whole tree; a
// non-empty one must match relPath on a full segment boundary, so grant
// "docs" matches "docs" and "docs/x" but never "docsarchive".
func (s *Store) findGrant(owner, caller, relPath string) bool {
	req := vpath.Normalize(relPath)
	for _, g := range s.grants {
		if !strings.EqualFold(g.From, owner) || !strings.EqualFold(g.To, caller) {
			continue
		}
		if g.Path == "" {
			return true
		}
		if strings.EqualFold(req, g.Path) {
			return true
		}
		if len(req) > len(g.Path) && strings.EqualFold(req[:len(g.Path)], g.Path) && req[len(g.Path)] == '/' {
			return true
		}
	}
	return false
}
