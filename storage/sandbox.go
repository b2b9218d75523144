// Package storage performs all filesystem work for the drive: path
// sandboxing, listing, create/delete/rename/move and whole-file writes.
// Every operation resolves paths through Sandbox.Map; nothing in this
// subsystem touches the filesystem via any other path construction.
package storage

import (
	"os"
	"path/filepath"
	"strings"
)

// Sandbox maps (owner, relativePath) pairs to canonical on-disk locations
// under a per-owner root, rejecting any escape from that root.
type Sandbox struct {
	usersRoot string
}

// NewSandbox creates the users root if absent and resolves it to its
// canonical absolute form once, so later containment checks compare
// like with like.
func NewSandbox(usersRoot string) (*Sandbox, error) {
	if err := os.MkdirAll(usersRoot, 0o755); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(usersRoot)
	if err != nil {
		return nil, err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return &Sandbox{usersRoot: abs}, nil
}

// UsersRoot returns the canonical root all owner homes live under.
func (s *Sandbox) UsersRoot() string {
	return s.usersRoot
}

// Map resolves relativePath inside owner's home and returns the absolute
// path, failing with ErrPathEscape when the fully resolved result is not the
// home itself or a descendant of it. The owner's home directory is created on
// first use; that is the only side effect of mapping.
func (s *Sandbox) Map(owner, relativePath string) (string, error) {
	if !validOwner(owner) {
		return "", ErrPathEscape
	}
	home := filepath.Join(s.usersRoot, owner)
	if err := os.MkdirAll(home, 0o755); err != nil {
		return "", err
	}

	combined := filepath.Join(home, filepath.FromSlash(relativePath))
	abs, err := filepath.Abs(combined)
	if err != nil {
		return "", ErrPathEscape
	}
	resolved := resolveExisting(abs)

	// The containment check runs on the fully resolved path, never the raw
	// string, so ".." traversal and symlink detours are both caught.
	resolvedHome := resolveExisting(home)
	if resolved != resolvedHome && !strings.HasPrefix(resolved, resolvedHome+string(filepath.Separator)) {
		return "", ErrPathEscape
	}
	return abs, nil
}

// validOwner rejects identities that could themselves traverse the tree.
func validOwner(owner string) bool {
	if owner == "" || owner == "." || owner == ".." {
		return false
	}
	return !strings.ContainsAny(owner, "/\\")
}

// resolveExisting resolves symlinks on the deepest existing ancestor of path
// and rejoins the remainder, so not-yet-created targets still get a canonical
// form to check against.
func resolveExisting(path string) string {
	remainder := ""
	current := path
	for {
		if resolved, err := filepath.EvalSymlinks(current); err == nil {
			return filepath.Join(resolved, remainder)
		}
		parent := filepath.Dir(current)
		if parent == current {
			return filepath.Join(current, remainder)
		}
		remainder = filepath.Join(filepath.Base(current), remainder)
		current = parent
	}
}
