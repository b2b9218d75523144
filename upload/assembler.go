// Package upload assembles chunked uploads. Chunks for one upload id may
// arrive out of order and concurrently; the chunk carrying the highest index
// triggers assembly into the final target file.
package upload

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	ttlworker "github.com/FloatTech/ttl"

	"github.com/foxdrive/foxdrive-go/storage"
	"github.com/foxdrive/foxdrive-go/tool"
)

// SessionTTL evicts abandoned upload sessions so their locks don't accumulate
// forever. Part files of evicted sessions stay on disk until the client
// retries or the temp dir is cleaned out of band.
const SessionTTL = 30 * time.Minute

const partDirName = ".uploads"

// MissingChunkError reports a gap found at assembly time. The session stays
// intact so the client can resend just the missing chunk.
type MissingChunkError struct {
	Index int
}

func (e *MissingChunkError) Error() string {
	return fmt.Sprintf("missing chunk %d", e.Index)
}

// ErrBadChunk rejects out-of-range index/total parameters.
var ErrBadChunk = fmt.Errorf("bad chunk index/total")

type session struct {
	mu sync.Mutex
}

// Assembler stores chunks as indexed part files in a per-upload temp
// directory and concatenates them once all indices are present.
type Assembler struct {
	sb       *storage.Sandbox
	mu       sync.Mutex
	sessions *ttlworker.Cache[string, *session]
}

func NewAssembler(sb *storage.Sandbox) *Assembler {
	return &Assembler{
		sb:       sb,
		sessions: ttlworker.NewCache[string, *session](SessionTTL),
	}
}

// PutChunk stores one chunk for uploadID. Re-sending an index overwrites the
// earlier part. When index == total-1 the call assembles all parts into
// relPath/fileName and reports assembled = true; the triggering chunk is
// synced to disk before assembly begins.
func (a *Assembler) PutChunk(owner, relPath, fileName, uploadID string, index, total int, data io.Reader) (assembled bool, err error) {
	if total <= 0 || index < 0 || index >= total {
		return false, ErrBadChunk
	}
	if fileName == "" || uploadID == "" {
		return false, ErrBadChunk
	}
	// uploadID and fileName arrive as free-form input; both are reduced to a
	// single path element and still resolved through the sandbox.
	uploadID = filepath.Base(filepath.FromSlash(uploadID))
	fileName = filepath.Base(filepath.FromSlash(fileName))

	partDir, err := a.sb.Map(owner, path.Join(relPath, partDirName, uploadID))
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(partDir, 0o755); err != nil {
		return false, err
	}
	if err := writePart(partDir, index, data); err != nil {
		return false, err
	}

	if index != total-1 {
		return false, nil
	}

	sess := a.getSession(uploadID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	target, err := a.sb.Map(owner, path.Join(relPath, fileName))
	if err != nil {
		return false, err
	}
	if err := a.assemble(partDir, target, total); err != nil {
		return false, err
	}

	if err := os.RemoveAll(partDir); err != nil {
		tool.DefaultLogger.Warnf("[Upload] Failed to remove part dir for upload %s: %v", uploadID, err)
	}
	a.sessions.Delete(uploadID)
	return true, nil
}

func (a *Assembler) getSession(uploadID string) *session {
	a.mu.Lock()
	defer a.mu.Unlock()
	sess := a.sessions.Get(uploadID)
	if sess == nil {
		sess = &session{}
		a.sessions.Set(uploadID, sess)
	}
	return sess
}

// writePart lands the chunk at a unique temp name first and renames it over
// the indexed part file, so a concurrent resend of the same index can never
// interleave bytes.
func writePart(partDir string, index int, data io.Reader) error {
	final := filepath.Join(partDir, partName(index))
	tmp, err := os.CreateTemp(partDir, partName(index)+".*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), final)
}

// assemble concatenates parts 0..total-1 into target. Output goes to a
// distinct path and is renamed only after every part was consumed, so the
// target is either fully absent or fully correct.
func (a *Assembler) assemble(partDir, target string, total int) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	staging := target + ".assembling"
	out, err := os.Create(staging)
	if err != nil {
		return err
	}

	for i := 0; i < total; i++ {
		partPath := filepath.Join(partDir, partName(i))
		in, err := os.Open(partPath)
		if err != nil {
			out.Close()
			os.Remove(staging)
			if os.IsNotExist(err) {
				return &MissingChunkError{Index: i}
			}
			return err
		}
		_, copyErr := io.Copy(out, in)
		in.Close()
		if copyErr != nil {
			out.Close()
			os.Remove(staging)
			return copyErr
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(staging)
		return err
	}
	return os.Rename(staging, target)
}

func partName(index int) string {
	return fmt.Sprintf("%06d.part", index)
}
