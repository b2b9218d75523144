package controllers

import (
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"github.com/foxdrive/foxdrive-go/api/middlewares"
	"github.com/foxdrive/foxdrive-go/share"
	"github.com/foxdrive/foxdrive-go/tool"
	"github.com/foxdrive/foxdrive-go/vpath"
)

const (
	defaultQRSize = 200
	maxQRSize     = 512
)

// QRController renders download links as QR codes so a browser session can
// hand a file over to a phone.
type QRController struct {
	shares *share.Store
}

func NewQRController(shares *share.Store) *QRController {
	return &QRController{shares: shares}
}

// GET /api/drive/v1/qr?path=...&name=...&size=256
// The QR encodes a download URL for the named file, built against the host
// the request arrived on. Access is checked like any other read.
func (ctrl *QRController) HandleDownloadQR(c *gin.Context) {
	caller := middlewares.CurrentUser(c)
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Missing name"))
		return
	}
	owner, rel, _ := vpath.Resolve(caller, c.Query("path"))
	if !ctrl.shares.CanRead(caller, owner, path.Join(rel, name)) {
		c.JSON(http.StatusForbidden, tool.FastReturnError("Forbidden"))
		return
	}

	size := parseSize(c.Query("size"))
	if size <= 0 {
		size = defaultQRSize
	}
	if size > maxQRSize {
		size = maxQRSize
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	link := url.URL{
		Scheme: scheme,
		Host:   c.Request.Host,
		Path:   "/api/drive/v1/download",
		RawQuery: url.Values{
			"path": {c.Query("path")},
			"name": {name},
		}.Encode(),
	}

	png, err := qrcode.Encode(link.String(), qrcode.Medium, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, tool.FastReturnError("Failed to encode QR code: "+err.Error()))
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

// parseSize parses size from "200x200" or "200" and returns the pixel dimension.
func parseSize(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if idx := strings.Index(s, "x"); idx > 0 {
		s = strings.TrimSpace(s[:idx])
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
