package upload

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxdrive/foxdrive-go/storage"
)

func newTestAssembler(t *testing.T) (*Assembler, *storage.Sandbox) {
	t.Helper()
	sb, err := storage.NewSandbox(filepath.Join(t.TempDir(), "users"))
	require.NoError(t, err)
	return NewAssembler(sb), sb
}

func readTarget(t *testing.T, sb *storage.Sandbox, owner, rel string) string {
	t.Helper()
	abs, err := sb.Map(owner, rel)
	require.NoError(t, err)
	data, err := os.ReadFile(abs)
	require.NoError(t, err)
	return string(data)
}

func targetExists(t *testing.T, sb *storage.Sandbox, owner, rel string) bool {
	t.Helper()
	abs, err := sb.Map(owner, rel)
	require.NoError(t, err)
	_, err = os.Stat(abs)
	return err == nil
}

func TestSequentialAssembly(t *testing.T) {
	a, sb := newTestAssembler(t)

	chunks := []string{"hello ", "chunked ", "world"}
	for i, c := range chunks {
		assembled, err := a.PutChunk("alice", "docs", "big.txt", "up1", i, len(chunks), strings.NewReader(c))
		require.NoError(t, err)
		assert.Equal(t, i == len(chunks)-1, assembled)
	}

	assert.Equal(t, "hello chunked world", readTarget(t, sb, "alice", "docs/big.txt"))

	// temp part dir is cleaned up
	partDir, err := sb.Map("alice", "docs/.uploads/up1")
	require.NoError(t, err)
	_, err = os.Stat(partDir)
	assert.True(t, os.IsNotExist(err))
}

func TestOutOfOrderAssembly(t *testing.T) {
	a, sb := newTestAssembler(t)

	_, err := a.PutChunk("alice", "", "f.bin", "up2", 1, 3, strings.NewReader("BB"))
	require.NoError(t, err)
	_, err = a.PutChunk("alice", "", "f.bin", "up2", 0, 3, strings.NewReader("AA"))
	require.NoError(t, err)
	assembled, err := a.PutChunk("alice", "", "f.bin", "up2", 2, 3, strings.NewReader("CC"))
	require.NoError(t, err)
	assert.True(t, assembled)

	assert.Equal(t, "AABBCC", readTarget(t, sb, "alice", "f.bin"))
}

func TestResendOverwritesChunk(t *testing.T) {
	a, sb := newTestAssembler(t)

	_, err := a.PutChunk("alice", "", "f.txt", "up3", 0, 3, strings.NewReader("one-"))
	require.NoError(t, err)
	_, err = a.PutChunk("alice", "", "f.txt", "up3", 1, 3, strings.NewReader("WRONG-"))
	require.NoError(t, err)
	_, err = a.PutChunk("alice", "", "f.txt", "up3", 1, 3, strings.NewReader("two-"))
	require.NoError(t, err)
	assembled, err := a.PutChunk("alice", "", "f.txt", "up3", 2, 3, strings.NewReader("three"))
	require.NoError(t, err)
	assert.True(t, assembled)

	// final file reflects the last write for index 1 only
	assert.Equal(t, "one-two-three", readTarget(t, sb, "alice", "f.txt"))
}

func TestMissingChunkLeavesSessionIntact(t *testing.T) {
	a, sb := newTestAssembler(t)

	for _, i := range []int{0, 1} {
		_, err := a.PutChunk("alice", "", "f.txt", "up4", i, 4, strings.NewReader("x"))
		require.NoError(t, err)
	}
	// chunk 2 never sent; final chunk triggers assembly
	_, err := a.PutChunk("alice", "", "f.txt", "up4", 3, 4, strings.NewReader("x"))

	var missing *MissingChunkError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, 2, missing.Index)

	// no partial target is left readable
	assert.False(t, targetExists(t, sb, "alice", "f.txt"))

	// resending the gap and re-triggering the final chunk completes the upload
	_, err = a.PutChunk("alice", "", "f.txt", "up4", 2, 4, strings.NewReader("x"))
	require.NoError(t, err)
	assembled, err := a.PutChunk("alice", "", "f.txt", "up4", 3, 4, strings.NewReader("x"))
	require.NoError(t, err)
	assert.True(t, assembled)
	assert.Equal(t, "xxxx", readTarget(t, sb, "alice", "f.txt"))
}

func TestChunkValidation(t *testing.T) {
	a, _ := newTestAssembler(t)

	_, err := a.PutChunk("alice", "", "f.txt", "up5", -1, 3, strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrBadChunk)
	_, err = a.PutChunk("alice", "", "f.txt", "up5", 3, 3, strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrBadChunk)
	_, err = a.PutChunk("alice", "", "f.txt", "up5", 0, 0, strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrBadChunk)
	_, err = a.PutChunk("alice", "", "", "up5", 0, 1, strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrBadChunk)
	_, err = a.PutChunk("alice", "", "f.txt", "", 0, 1, strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrBadChunk)
}

func TestHostileNamesAreSandboxed(t *testing.T) {
	a, sb := newTestAssembler(t)

	// path-bearing fileName and uploadId are reduced to their base name
	assembled, err := a.PutChunk("alice", "", "../../evil.txt", "../up6", 0, 1, strings.NewReader("data"))
	require.NoError(t, err)
	assert.True(t, assembled)
	assert.Equal(t, "data", readTarget(t, sb, "alice", "evil.txt"))

	// relPath escapes are still caught by the sandbox
	_, err = a.PutChunk("alice", "../bob", "f.txt", "up7", 0, 1, strings.NewReader("x"))
	assert.ErrorIs(t, err, storage.ErrPathEscape)
}

func TestConcurrentChunksSingleUpload(t *testing.T) {
	a, sb := newTestAssembler(t)

	const total = 20
	var wg sync.WaitGroup
	for i := 0; i < total-1; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := a.PutChunk("alice", "", "par.bin", "up8", i, total, strings.NewReader(strings.Repeat("a", 10)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assembled, err := a.PutChunk("alice", "", "par.bin", "up8", total-1, total, strings.NewReader(strings.Repeat("a", 10)))
	require.NoError(t, err)
	assert.True(t, assembled)
	assert.Len(t, readTarget(t, sb, "alice", "par.bin"), total*10)
}
