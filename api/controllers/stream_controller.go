package controllers

import (
	"errors"
	"net/http"
	"net/url"
	"os"
	"path"

	"github.com/gin-gonic/gin"

	"github.com/foxdrive/foxdrive-go/api/middlewares"
	"github.com/foxdrive/foxdrive-go/share"
	"github.com/foxdrive/foxdrive-go/storage"
	"github.com/foxdrive/foxdrive-go/stream"
	"github.com/foxdrive/foxdrive-go/tool"
	"github.com/foxdrive/foxdrive-go/vpath"
)

const manifestContentType = "application/vnd.apple.mpegurl"

// StreamController serves adaptive streaming manifests and segments, backed
// by the transcode cache.
type StreamController struct {
	storage *storage.Engine
	shares  *share.Store
	cache   *stream.Cache
}

func NewStreamController(engine *storage.Engine, shares *share.Store, cache *stream.Cache) *StreamController {
	return &StreamController{storage: engine, shares: shares, cache: cache}
}

// resolveSource checks access and maps (path, name) to the absolute source
// file, answering the request itself on failure.
func (ctrl *StreamController) resolveSource(c *gin.Context) (abs string, ok bool) {
	caller := middlewares.CurrentUser(c)
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Missing name"))
		return "", false
	}
	owner, rel, _ := vpath.Resolve(caller, c.Query("path"))
	fullRel := path.Join(rel, name)
	if !ctrl.shares.CanRead(caller, owner, fullRel) {
		c.JSON(http.StatusForbidden, tool.FastReturnError("Forbidden"))
		return "", false
	}
	abs, err := ctrl.storage.Abs(owner, fullRel)
	if err != nil {
		respondStorageErr(c, err)
		return "", false
	}
	if info, err := os.Stat(abs); err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Not found"))
		return "", false
	}
	return abs, true
}

// GET /api/drive/v1/stream/manifest?path=...&name=...
func (ctrl *StreamController) HandleManifest(c *gin.Context) {
	abs, ok := ctrl.resolveSource(c)
	if !ok {
		return
	}

	key, err := ctrl.cache.EnsureBuilt(abs)
	if err != nil {
		if errors.Is(err, stream.ErrBuildFailed) {
			c.JSON(http.StatusBadGateway, tool.FastReturnError("Transcode failed; rebuild to retry"))
			return
		}
		respondStorageErr(c, err)
		return
	}

	// Segment URIs are rewritten to route back through this subsystem so
	// cache-internal paths never reach the client.
	segmentURL := func(seg string) string {
		return "segment?path=" + url.QueryEscape(c.Query("path")) +
			"&name=" + url.QueryEscape(c.Query("name")) +
			"&segment=" + url.QueryEscape(seg)
	}

	manifest, err := ctrl.cache.ReadManifest(key, segmentURL)
	switch {
	case errors.Is(err, stream.ErrBuildPending):
		c.JSON(http.StatusAccepted, gin.H{"status": "preparing"})
	case errors.Is(err, stream.ErrBuildFailed):
		c.JSON(http.StatusBadGateway, tool.FastReturnError("Transcode failed; rebuild to retry"))
	case err != nil:
		respondStorageErr(c, err)
	default:
		c.Data(http.StatusOK, manifestContentType, []byte(manifest))
	}
}

// GET /api/drive/v1/stream/segment?path=...&name=...&segment=...
func (ctrl *StreamController) HandleSegment(c *gin.Context) {
	abs, ok := ctrl.resolveSource(c)
	if !ok {
		return
	}

	segPath, err := ctrl.cache.ReadSegment(stream.KeyFor(abs), c.Query("segment"))
	switch {
	case errors.Is(err, stream.ErrBadSegmentName):
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Bad segment name"))
	case errors.Is(err, stream.ErrSegmentNotFound):
		c.JSON(http.StatusNotFound, tool.FastReturnError("Not found"))
	case err != nil:
		respondStorageErr(c, err)
	default:
		c.Header("Content-Type", "video/mp2t")
		c.File(segPath)
	}
}

// POST /api/drive/v1/stream/rebuild?path=...&name=...
// Drops the cache entry for a source overwritten in place (or a failed
// build) and relaunches the conversion.
func (ctrl *StreamController) HandleRebuild(c *gin.Context) {
	caller := middlewares.CurrentUser(c)
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Missing name"))
		return
	}
	owner, rel, _ := vpath.Resolve(caller, c.Query("path"))
	fullRel := path.Join(rel, name)
	// rebuilding discards cached output, so it is gated like a write
	if !ctrl.shares.CanWrite(caller, owner, fullRel) {
		c.JSON(http.StatusForbidden, tool.FastReturnError("Forbidden"))
		return
	}
	abs, err := ctrl.storage.Abs(owner, fullRel)
	if err != nil {
		respondStorageErr(c, err)
		return
	}
	if err := ctrl.cache.Invalidate(abs); err != nil {
		respondStorageErr(c, err)
		return
	}
	if _, err := ctrl.cache.EnsureBuilt(abs); err != nil {
		respondStorageErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "preparing"})
}
