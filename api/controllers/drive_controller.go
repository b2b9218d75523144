package controllers

import (
	"errors"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/foxdrive/foxdrive-go/api/middlewares"
	"github.com/foxdrive/foxdrive-go/api/models"
	"github.com/foxdrive/foxdrive-go/share"
	"github.com/foxdrive/foxdrive-go/storage"
	"github.com/foxdrive/foxdrive-go/tool"
	"github.com/foxdrive/foxdrive-go/types"
	"github.com/foxdrive/foxdrive-go/vpath"
)

// DriveController serves the core file operations: list, mkdir, whole-file
// upload, download/open, delete, rename, move.
type DriveController struct {
	storage *storage.Engine
	shares  *share.Store
}

func NewDriveController(engine *storage.Engine, shares *share.Store) *DriveController {
	return &DriveController{storage: engine, shares: shares}
}

// respondStorageErr maps storage failures onto the boundary taxonomy. Path
// escapes answer as a plain bad request without echoing anything about the
// resolved location.
func respondStorageErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrPathEscape):
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid path"))
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, tool.FastReturnError("Not found"))
	default:
		tool.DefaultLogger.Errorf("[Drive] Storage failure: %v", err)
		c.JSON(http.StatusInternalServerError, tool.FastReturnError("Storage failure"))
	}
}

// GET /api/drive/v1/list?path=...
func (ctrl *DriveController) HandleList(c *gin.Context) {
	caller := middlewares.CurrentUser(c)
	owner, rel, shared := vpath.Resolve(caller, c.Query("path"))

	// "@shared" root: virtual listing of everyone who shared with the caller
	if shared && owner == vpath.VirtualRoot {
		senders := ctrl.shares.SendersFor(caller)
		pseudo := make([]types.FileEntry, 0, len(senders))
		for _, s := range senders {
			pseudo = append(pseudo, types.FileEntry{Name: s, Kind: types.KindFolder})
		}
		c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(pseudo))
		return
	}

	if !ctrl.shares.CanRead(caller, owner, rel) {
		c.JSON(http.StatusForbidden, tool.FastReturnError("Forbidden"))
		return
	}

	entries, err := ctrl.storage.List(owner, rel)
	if err != nil {
		respondStorageErr(c, err)
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(entries))
}

// POST /api/drive/v1/mkdir?path=...&name=...
func (ctrl *DriveController) HandleMkdir(c *gin.Context) {
	caller := middlewares.CurrentUser(c)
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Missing name"))
		return
	}
	owner, rel, _ := vpath.Resolve(caller, c.Query("path"))
	if !ctrl.shares.CanWrite(caller, owner, rel) {
		c.JSON(http.StatusForbidden, tool.FastReturnError("Forbidden"))
		return
	}
	if err := ctrl.storage.Mkdir(owner, rel, name); err != nil {
		respondStorageErr(c, err)
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}

// POST /api/drive/v1/upload?path=... with multipart field "file"
func (ctrl *DriveController) HandleUpload(c *gin.Context) {
	caller := middlewares.CurrentUser(c)
	owner, rel, _ := vpath.Resolve(caller, c.Query("path"))
	if !ctrl.shares.CanWrite(caller, owner, rel) {
		c.JSON(http.StatusForbidden, tool.FastReturnError("Forbidden"))
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Missing file"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Unreadable file"))
		return
	}
	defer f.Close()

	name := filepath.Base(filepath.FromSlash(fh.Filename))
	if err := ctrl.storage.Save(owner, path.Join(rel, name), f); err != nil {
		respondStorageErr(c, err)
		return
	}
	tool.DefaultLogger.Infof("[Drive] Upload saved: owner=%s, rel=%s, name=%s, size=%d", owner, rel, name, fh.Size)
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}

// serveFile answers with range support and the original filename preserved.
func (ctrl *DriveController) serveFile(c *gin.Context, disposition string) {
	caller := middlewares.CurrentUser(c)
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Missing name"))
		return
	}
	owner, rel, _ := vpath.Resolve(caller, c.Query("path"))
	fullRel := path.Join(rel, name)
	if !ctrl.shares.CanRead(caller, owner, fullRel) {
		c.JSON(http.StatusForbidden, tool.FastReturnError("Forbidden"))
		return
	}

	abs, err := ctrl.storage.Abs(owner, fullRel)
	if err != nil {
		respondStorageErr(c, err)
		return
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Not found"))
		return
	}

	ct := mime.TypeByExtension(filepath.Ext(name))
	if ct == "" {
		ct = "application/octet-stream"
	}
	c.Header("Content-Type", ct)
	c.Header("Content-Disposition", disposition+"; filename="+strconv.Quote(name))
	// http.ServeFile underneath handles Range requests for resume/seek
	c.File(abs)
}

// GET /api/drive/v1/download?path=...&name=...
func (ctrl *DriveController) HandleDownload(c *gin.Context) {
	ctrl.serveFile(c, "attachment")
}

// GET /api/drive/v1/open?path=...&name=... (in-browser preview/playback)
func (ctrl *DriveController) HandleOpen(c *gin.Context) {
	ctrl.serveFile(c, "inline")
}

// DELETE /api/drive/v1/delete?path=...&name=...
func (ctrl *DriveController) HandleDelete(c *gin.Context) {
	caller := middlewares.CurrentUser(c)
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Missing name"))
		return
	}
	owner, rel, _ := vpath.Resolve(caller, c.Query("path"))
	if !ctrl.shares.CanWrite(caller, owner, rel) {
		c.JSON(http.StatusForbidden, tool.FastReturnError("Forbidden"))
		return
	}
	if err := ctrl.storage.Delete(owner, path.Join(rel, name)); err != nil {
		respondStorageErr(c, err)
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}

// POST /api/drive/v1/rename?path=...&from=...&to=...
func (ctrl *DriveController) HandleRename(c *gin.Context) {
	caller := middlewares.CurrentUser(c)
	from, to := c.Query("from"), c.Query("to")
	if from == "" || to == "" {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Missing from/to"))
		return
	}
	owner, rel, _ := vpath.Resolve(caller, c.Query("path"))
	if !ctrl.shares.CanWrite(caller, owner, rel) {
		c.JSON(http.StatusForbidden, tool.FastReturnError("Forbidden"))
		return
	}
	if err := ctrl.storage.Rename(owner, rel, from, to); err != nil {
		respondStorageErr(c, err)
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}

// POST /api/drive/v1/move with JSON body {fromPath, name, toPath}
func (ctrl *DriveController) HandleMove(c *gin.Context) {
	caller := middlewares.CurrentUser(c)
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Failed to read request body"))
		return
	}
	req, err := models.ParseMoveRequest(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid request body"))
		return
	}

	fromOwner, fromRel, _ := vpath.Resolve(caller, req.FromPath)
	toOwner, toRel, _ := vpath.Resolve(caller, req.ToPath)

	if !ctrl.shares.CanWrite(caller, fromOwner, fromRel) || !ctrl.shares.CanWrite(caller, toOwner, toRel) {
		c.JSON(http.StatusForbidden, tool.FastReturnError("Forbidden"))
		return
	}
	if err := ctrl.storage.Move(fromOwner, fromRel, req.Name, toOwner, toRel); err != nil {
		respondStorageErr(c, err)
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}
