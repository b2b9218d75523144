// Package stream produces and serves cached adaptive-streaming renditions of
// source media files. Cache entries are keyed by a hash of the source's
// absolute path and live in their own directory tree, never inside any
// owner's listable tree.
package stream

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/foxdrive/foxdrive-go/tool"
)

const (
	// ManifestName is the playlist file a build writes into its cache dir.
	ManifestName = "index.m3u8"

	failedMarker = ".failed"

	// DefaultReadyWait bounds how long a manifest read waits for the first
	// streamable segment before reporting ErrBuildPending.
	DefaultReadyWait = 2 * time.Second

	// DefaultMaxBuild caps a single conversion; builds are never cancelled by
	// viewers disconnecting, only by this policy.
	DefaultMaxBuild = 2 * time.Hour
)

type build struct {
	done chan struct{}
	err  error
}

// Cache launches at most one build per key and serves partial output while a
// conversion is still running. Build leases are held for the process
// lifetime, so concurrent first viewers share a single build.
type Cache struct {
	root      string
	tc        Transcoder
	readyWait time.Duration
	maxBuild  time.Duration

	// OnReady, when set, is called once a build completes successfully.
	// Wired to the event hub by the server.
	OnReady func(sourcePath, key string)
	// OnFailed mirrors OnReady for crashed builds.
	OnFailed func(sourcePath, key string, err error)

	mu     sync.Mutex
	builds map[string]*build
}

func NewCache(root string, tc Transcoder) (*Cache, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Cache{
		root:      root,
		tc:        tc,
		readyWait: DefaultReadyWait,
		maxBuild:  DefaultMaxBuild,
		builds:    make(map[string]*build),
	}, nil
}

// KeyFor derives the deterministic cache key for a source file location.
// Keys are per logical path, not per content: a file overwritten in place
// reuses its stale cache until explicitly invalidated.
func KeyFor(absoluteSourcePath string) string {
	sum := sha256.Sum256([]byte(absoluteSourcePath))
	return hex.EncodeToString(sum[:])
}

// Dir returns the cache directory for a key.
func (c *Cache) Dir(key string) string {
	return filepath.Join(c.root, key)
}

// EnsureBuilt makes sure a build for the source is finished or in flight and
// returns the cache key. It never blocks on the conversion itself. A key
// whose previous build crashed reports ErrBuildFailed until Invalidate is
// called, so broken sources are not silently retried forever.
func (c *Cache) EnsureBuilt(absoluteSourcePath string) (string, error) {
	key := KeyFor(absoluteSourcePath)
	dir := c.Dir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return key, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, inFlight := c.builds[key]; inFlight {
		return key, nil
	}
	if _, err := os.Stat(filepath.Join(dir, failedMarker)); err == nil {
		return key, ErrBuildFailed
	}
	if _, err := os.Stat(filepath.Join(dir, ManifestName)); err == nil {
		return key, nil // built by an earlier process lifetime
	}

	b := &build{done: make(chan struct{})}
	c.builds[key] = b
	go c.runBuild(b, absoluteSourcePath, key, dir)
	return key, nil
}

func (c *Cache) runBuild(b *build, src, key, dir string) {
	defer close(b.done)

	ctx, cancel := context.WithTimeout(context.Background(), c.maxBuild)
	defer cancel()

	tool.DefaultLogger.Infof("[Stream] Starting transcode for key %s", key)
	err := c.tc.Build(ctx, src, dir)
	b.err = err
	if err != nil {
		tool.DefaultLogger.Errorf("[Stream] Transcode failed for key %s: %v", key, err)
		if werr := os.WriteFile(filepath.Join(dir, failedMarker), []byte(err.Error()), 0o644); werr != nil {
			tool.DefaultLogger.Errorf("[Stream] Failed to write failure marker: %v", werr)
		}
		if c.OnFailed != nil {
			c.OnFailed(src, key, err)
		}
		return
	}
	tool.DefaultLogger.Infof("[Stream] Transcode complete for key %s", key)
	if c.OnReady != nil {
		c.OnReady(src, key)
	}
}

// Invalidate drops the cache entry and build lease for a source so the next
// EnsureBuilt starts fresh. This is the explicit rebuild trigger for sources
// overwritten in place or marked failed.
func (c *Cache) Invalidate(absoluteSourcePath string) error {
	key := KeyFor(absoluteSourcePath)
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, inFlight := c.builds[key]; inFlight {
		select {
		case <-b.done:
		default:
			// Leave a running build alone; it will repopulate the entry.
			return nil
		}
		delete(c.builds, key)
	}
	return os.RemoveAll(c.Dir(key))
}

// ReadManifest waits up to the ready window for the manifest to reference at
// least one segment, then returns it with every segment URI passed through
// rewrite. When the manifest file is absent but segments exist, a minimal
// one-segment manifest is synthesized. Nothing within the window yields
// ErrBuildPending; callers should retry.
func (c *Cache) ReadManifest(key string, rewrite func(segmentName string) string) (string, error) {
	dir := c.Dir(key)

	c.mu.Lock()
	b := c.builds[key]
	c.mu.Unlock()

	deadline := time.After(c.readyWait)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		if m, ok := c.tryReadManifest(dir, rewrite); ok {
			return m, nil
		}
		var done chan struct{}
		if b != nil {
			done = b.done
		}
		select {
		case <-done:
			if b.err != nil {
				return "", ErrBuildFailed
			}
			if m, ok := c.tryReadManifest(dir, rewrite); ok {
				return m, nil
			}
			b = nil // finished but nothing streamable; keep polling the window
		case <-tick.C:
		case <-deadline:
			if b != nil {
				select {
				case <-b.done:
					if b.err != nil {
						return "", ErrBuildFailed
					}
				default:
				}
			}
			return "", ErrBuildPending
		}
	}
}

func (c *Cache) tryReadManifest(dir string, rewrite func(string) string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err == nil && strings.Contains(string(data), "#EXTINF") {
		return rewriteManifest(string(data), rewrite), true
	}
	// No manifest yet; if the builder already dropped a segment, synthesize a
	// minimal playlist from it.
	segs := listSegments(dir)
	if len(segs) > 0 {
		return rewriteManifest(synthesizeManifest(segs[0]), rewrite), true
	}
	return "", false
}

// ReadSegment validates the free-form segment name and returns the absolute
// path of the segment file. The name check is a second, narrower sandbox
// independent of the storage one, and runs before any filesystem access.
func (c *Cache) ReadSegment(key, segmentName string) (string, error) {
	if !safeSegmentName(segmentName) {
		return "", ErrBadSegmentName
	}
	p := filepath.Join(c.Dir(key), segmentName)
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return "", ErrSegmentNotFound
		}
		return "", err
	}
	return p, nil
}

func safeSegmentName(name string) bool {
	if name == "" || name == "." {
		return false
	}
	if strings.ContainsAny(name, "/\\") {
		return false
	}
	return !strings.Contains(name, "..")
}

func listSegments(dir string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, "*.ts"))
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, filepath.Base(m))
	}
	sort.Strings(names)
	return names
}
