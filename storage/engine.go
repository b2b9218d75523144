package storage

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/foxdrive/foxdrive-go/types"
)

// Engine performs listing, creation, deletion, rename and move operations
// against the sandboxed filesystem. Callers are expected to have passed
// access control already; every path still goes through the sandbox.
type Engine struct {
	sb *Sandbox
}

func NewEngine(sb *Sandbox) *Engine {
	return &Engine{sb: sb}
}

// Sandbox exposes the underlying sandbox for collaborators (chunked upload,
// transcode source resolution) that need absolute paths of their own.
func (e *Engine) Sandbox() *Sandbox {
	return e.sb
}

// Abs maps a relative path to its absolute on-disk location.
func (e *Engine) Abs(owner, relPath string) (string, error) {
	return e.sb.Map(owner, relPath)
}

// List returns directories first, then files, each sorted by name. Folder
// entries report a nil size. A missing directory is created rather than
// reported, so a first-time listing of a brand-new owner never errors.
func (e *Engine) List(owner, relPath string) ([]types.FileEntry, error) {
	dir, err := e.sb.Map(owner, relPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var folders, files []types.FileEntry
	for _, d := range dirents {
		info, err := d.Info()
		if err != nil {
			continue // entry vanished mid-listing
		}
		mod := info.ModTime()
		if d.IsDir() {
			folders = append(folders, types.FileEntry{
				Name:         d.Name(),
				Kind:         types.KindFolder,
				LastModified: &mod,
			})
		} else {
			size := info.Size()
			files = append(files, types.FileEntry{
				Name:         d.Name(),
				Kind:         types.KindFile,
				Size:         &size,
				LastModified: &mod,
			})
		}
	}
	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return append(folders, files...), nil
}

// Mkdir creates a possibly multi-segment directory; idempotent when it
// already exists.
func (e *Engine) Mkdir(owner, parentPath, name string) error {
	full, err := e.sb.Map(owner, path.Join(parentPath, name))
	if err != nil {
		return err
	}
	return os.MkdirAll(full, 0o755)
}

// Delete removes a file or recursively removes a directory.
func (e *Engine) Delete(owner, relPath string) error {
	full, err := e.sb.Map(owner, relPath)
	if err != nil {
		return err
	}
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	if info.IsDir() {
		return os.RemoveAll(full)
	}
	return os.Remove(full)
}

// Rename atomically renames an entry within the same owner root.
func (e *Engine) Rename(owner, parentPath, from, to string) error {
	src, err := e.sb.Map(owner, path.Join(parentPath, from))
	if err != nil {
		return err
	}
	dst, err := e.sb.Map(owner, path.Join(parentPath, to))
	if err != nil {
		return err
	}
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return os.Rename(src, dst)
}

// Move relocates an entry, potentially across owners (accepting a shared
// item into one's own tree). The destination directory is created if absent.
func (e *Engine) Move(ownerFrom, fromPath, name, ownerTo, toPath string) error {
	src, err := e.sb.Map(ownerFrom, path.Join(fromPath, name))
	if err != nil {
		return err
	}
	dstDir, err := e.sb.Map(ownerTo, toPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return os.Rename(src, filepath.Join(dstDir, filepath.Base(src)))
}

// Save writes a whole file through the sandbox. The content lands at a temp
// path first and is renamed into place, so a half-written target is never
// readable under its final name.
func (e *Engine) Save(owner, relPath string, r io.Reader) error {
	full, err := e.sb.Map(owner, relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	tmp := full + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, full)
}
