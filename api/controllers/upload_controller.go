package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/foxdrive/foxdrive-go/api/middlewares"
	"github.com/foxdrive/foxdrive-go/api/notifyhub"
	"github.com/foxdrive/foxdrive-go/share"
	"github.com/foxdrive/foxdrive-go/tool"
	"github.com/foxdrive/foxdrive-go/types"
	"github.com/foxdrive/foxdrive-go/upload"
	"github.com/foxdrive/foxdrive-go/vpath"
)

// UploadController handles the chunked upload protocol for large files.
type UploadController struct {
	assembler *upload.Assembler
	shares    *share.Store
	hub       *notifyhub.Hub
}

func NewUploadController(assembler *upload.Assembler, shares *share.Store, hub *notifyhub.Hub) *UploadController {
	return &UploadController{assembler: assembler, shares: shares, hub: hub}
}

// POST /api/drive/v1/upload/new
// Hands the client a fresh upload id for a chunked session. Ids are short so
// they are easy to log and retry by hand.
func (ctrl *UploadController) HandleNewUploadID(c *gin.Context) {
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(gin.H{
		"uploadId": tool.GenerateUploadID(),
	}))
}

// POST /api/drive/v1/upload/chunk?path=...&fileName=...&uploadId=...&index=...&total=...
// with multipart field "chunk". The final index triggers assembly.
func (ctrl *UploadController) HandleUploadChunk(c *gin.Context) {
	caller := middlewares.CurrentUser(c)

	fileName := c.Query("fileName")
	uploadID := c.Query("uploadId")
	if fileName == "" || uploadID == "" {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Missing fileName/uploadId"))
		return
	}
	index, err := strconv.Atoi(c.Query("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Bad index"))
		return
	}
	total, err := strconv.Atoi(c.Query("total"))
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Bad total"))
		return
	}

	owner, rel, _ := vpath.Resolve(caller, c.Query("path"))
	if !ctrl.shares.CanWrite(caller, owner, rel) {
		c.JSON(http.StatusForbidden, tool.FastReturnError("Forbidden"))
		return
	}

	fh, err := c.FormFile("chunk")
	if err != nil || fh.Size == 0 {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Empty chunk"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Unreadable chunk"))
		return
	}
	defer f.Close()

	assembled, err := ctrl.assembler.PutChunk(owner, rel, fileName, uploadID, index, total, f)
	if err != nil {
		var missing *upload.MissingChunkError
		switch {
		case errors.As(err, &missing):
			// session stays intact; the client resends just this chunk
			c.JSON(http.StatusInternalServerError, tool.FastReturnError(missing.Error()))
		case errors.Is(err, upload.ErrBadChunk):
			c.JSON(http.StatusBadRequest, tool.FastReturnError("Bad index/total"))
		default:
			respondStorageErr(c, err)
		}
		return
	}

	if assembled {
		tool.DefaultLogger.Infof("[Upload] Assembled chunked upload: owner=%s, rel=%s, file=%s (%d chunks)", owner, rel, fileName, total)
		go ctrl.hub.Broadcast(&types.Notification{
			Type:    types.NotifyTypeUploadComplete,
			Title:   "Upload Complete",
			Message: fileName,
			Data: map[string]any{
				"path":     c.Query("path"),
				"fileName": fileName,
				"uploadId": uploadID,
			},
		})
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}
