package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/foxdrive/foxdrive-go/api/middlewares"
	"github.com/foxdrive/foxdrive-go/api/notifyhub"
	"github.com/foxdrive/foxdrive-go/share"
	"github.com/foxdrive/foxdrive-go/storage"
	"github.com/foxdrive/foxdrive-go/stream"
	"github.com/foxdrive/foxdrive-go/types"
	"github.com/foxdrive/foxdrive-go/upload"
)

// instantTranscoder writes a canned manifest so stream routes can be
// exercised without ffmpeg.
type instantTranscoder struct{}

func (instantTranscoder) Build(_ context.Context, _, outputDir string) error {
	manifest := "#EXTM3U\n#EXT-X-VERSION:3\n#EXTINF:4.0,\nseg000000.ts\n#EXT-X-ENDLIST\n"
	if err := os.WriteFile(filepath.Join(outputDir, "seg000000.ts"), []byte("ts"), 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outputDir, stream.ManifestName), []byte(manifest), 0o644)
}

// setupRouter builds a test router with the drive endpoints on a temp root.
func setupRouter(t *testing.T, grants []types.ShareGrant, sharedWrite bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sb, err := storage.NewSandbox(filepath.Join(t.TempDir(), "users"))
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	engine := storage.NewEngine(sb)
	shares := share.NewStore(grants, sharedWrite)
	assembler := upload.NewAssembler(sb)
	cache, err := stream.NewCache(filepath.Join(t.TempDir(), "streamcache"), instantTranscoder{})
	if err != nil {
		t.Fatalf("cache: %v", err)
	}

	driveCtrl := NewDriveController(engine, shares)
	uploadCtrl := NewUploadController(assembler, shares, notifyhub.New())
	streamCtrl := NewStreamController(engine, shares, cache)
	qrCtrl := NewQRController(shares)

	router := gin.New()
	v1 := router.Group("/api/drive/v1", middlewares.RequireIdentity)
	{
		v1.GET("/list", driveCtrl.HandleList)
		v1.POST("/mkdir", driveCtrl.HandleMkdir)
		v1.POST("/upload", driveCtrl.HandleUpload)
		v1.POST("/upload/chunk", uploadCtrl.HandleUploadChunk)
		v1.GET("/download", driveCtrl.HandleDownload)
		v1.GET("/open", driveCtrl.HandleOpen)
		v1.DELETE("/delete", driveCtrl.HandleDelete)
		v1.POST("/rename", driveCtrl.HandleRename)
		v1.POST("/move", driveCtrl.HandleMove)
		v1.GET("/stream/manifest", streamCtrl.HandleManifest)
		v1.GET("/stream/segment", streamCtrl.HandleSegment)
		v1.GET("/qr", qrCtrl.HandleDownloadQR)
	}
	return router
}

func doRequest(router *gin.Engine, user, method, target string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req, _ := http.NewRequest(method, target, body)
	if user != "" {
		req.Header.Set(middlewares.IdentityHeader, user)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("multipart: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("multipart write: %v", err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func listNames(t *testing.T, router *gin.Engine, user, path string) []string {
	t.Helper()
	w := doRequest(router, user, "GET", "/api/drive/v1/list?path="+path, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list %q returned %d: %s", path, w.Code, w.Body.String())
	}
	var response struct {
		Data []types.FileEntry `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse list response: %v", err)
	}
	names := make([]string, 0, len(response.Data))
	for _, e := range response.Data {
		names = append(names, e.Name)
	}
	return names
}

func TestMissingIdentityRejected(t *testing.T) {
	router := setupRouter(t, nil, false)

	w := doRequest(router, "", "GET", "/api/drive/v1/list", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without identity, got %d", w.Code)
	}
}

func TestMkdirRenameListRoundTrip(t *testing.T) {
	router := setupRouter(t, nil, false)

	w := doRequest(router, "alice", "POST", "/api/drive/v1/mkdir?path=&name=x", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("mkdir returned %d: %s", w.Code, w.Body.String())
	}

	names := listNames(t, router, "alice", "")
	if len(names) != 1 || names[0] != "x" {
		t.Fatalf("Expected [x], got %v", names)
	}

	w = doRequest(router, "alice", "POST", "/api/drive/v1/rename?path=&from=x&to=y", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("rename returned %d: %s", w.Code, w.Body.String())
	}

	names = listNames(t, router, "alice", "")
	if len(names) != 1 || names[0] != "y" {
		t.Errorf("Expected [y], got %v", names)
	}
}

func TestUploadThenDownload(t *testing.T) {
	router := setupRouter(t, nil, false)

	body, ct := multipartBody(t, "file", "hello.txt", "hello drive")
	w := doRequest(router, "alice", "POST", "/api/drive/v1/upload?path=docs", body, ct)
	if w.Code != http.StatusOK {
		t.Fatalf("upload returned %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(router, "alice", "GET", "/api/drive/v1/download?path=docs&name=hello.txt", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("download returned %d", w.Code)
	}
	if w.Body.String() != "hello drive" {
		t.Errorf("Unexpected download body: %q", w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="hello.txt"` {
		t.Errorf("Unexpected Content-Disposition: %q", cd)
	}
}

func TestSharedNamespace(t *testing.T) {
	grants := []types.ShareGrant{{From: "alice", To: "bob", Path: "docs"}}
	router := setupRouter(t, grants, false)

	body, ct := multipartBody(t, "file", "x.txt", "shared content")
	w := doRequest(router, "alice", "POST", "/api/drive/v1/upload?path=docs", body, ct)
	if w.Code != http.StatusOK {
		t.Fatalf("upload returned %d", w.Code)
	}

	// "@shared" root lists senders as virtual folders
	names := listNames(t, router, "bob", "@shared")
	if len(names) != 1 || names[0] != "alice" {
		t.Fatalf("Expected [alice], got %v", names)
	}

	names = listNames(t, router, "bob", "@shared/alice/docs")
	if len(names) != 1 || names[0] != "x.txt" {
		t.Errorf("Expected [x.txt], got %v", names)
	}

	// reads outside the granted prefix are forbidden, not not-found
	w = doRequest(router, "bob", "GET", "/api/drive/v1/list?path=@shared/alice/private", nil, "")
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 outside grant, got %d", w.Code)
	}

	// shared writes are globally disabled in this router
	w = doRequest(router, "bob", "POST", "/api/drive/v1/mkdir?path=@shared/alice/docs&name=sub", nil, "")
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 shared write, got %d", w.Code)
	}
}

func TestChunkedUploadOverHTTP(t *testing.T) {
	router := setupRouter(t, nil, false)

	chunks := []string{"part0-", "part1-", "part2"}
	for i, chunk := range chunks {
		body, ct := multipartBody(t, "chunk", "blob", chunk)
		target := "/api/drive/v1/upload/chunk?path=&fileName=big.bin&uploadId=u1&index=" +
			strconv.Itoa(i) + "&total=" + strconv.Itoa(len(chunks))
		w := doRequest(router, "alice", "POST", target, body, ct)
		if w.Code != http.StatusOK {
			t.Fatalf("chunk %d returned %d: %s", i, w.Code, w.Body.String())
		}
	}

	w := doRequest(router, "alice", "GET", "/api/drive/v1/download?path=&name=big.bin", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("download returned %d", w.Code)
	}
	if w.Body.String() != "part0-part1-part2" {
		t.Errorf("Unexpected assembled content: %q", w.Body.String())
	}
}

func TestMoveAcceptsSharedItem(t *testing.T) {
	grants := []types.ShareGrant{{From: "alice", To: "bob", Path: "outbox"}}
	router := setupRouter(t, grants, true)

	body, ct := multipartBody(t, "file", "gift.txt", "for bob")
	w := doRequest(router, "alice", "POST", "/api/drive/v1/upload?path=outbox", body, ct)
	if w.Code != http.StatusOK {
		t.Fatalf("upload returned %d", w.Code)
	}

	moveBody, _ := json.Marshal(types.MoveRequest{
		FromPath: "@shared/alice/outbox",
		Name:     "gift.txt",
		ToPath:   "inbox",
	})
	w = doRequest(router, "bob", "POST", "/api/drive/v1/move", bytes.NewBuffer(moveBody), "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("move returned %d: %s", w.Code, w.Body.String())
	}

	names := listNames(t, router, "bob", "inbox")
	if len(names) != 1 || names[0] != "gift.txt" {
		t.Errorf("Expected [gift.txt], got %v", names)
	}
}

func TestDownloadQR(t *testing.T) {
	grants := []types.ShareGrant{{From: "alice", To: "bob", Path: "docs"}}
	router := setupRouter(t, grants, false)

	body, ct := multipartBody(t, "file", "hello.txt", "hello drive")
	w := doRequest(router, "alice", "POST", "/api/drive/v1/upload?path=docs", body, ct)
	if w.Code != http.StatusOK {
		t.Fatalf("upload returned %d", w.Code)
	}

	w = doRequest(router, "bob", "GET", "/api/drive/v1/qr?path=@shared/alice/docs&name=hello.txt", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("qr returned %d: %s", w.Code, w.Body.String())
	}
	if cty := w.Header().Get("Content-Type"); cty != "image/png" {
		t.Errorf("Unexpected content type: %q", cty)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Errorf("Response is not a PNG image")
	}

	// no grant on this subtree, so no link is handed out
	w = doRequest(router, "bob", "GET", "/api/drive/v1/qr?path=@shared/alice/private&name=x.txt", nil, "")
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 outside grant, got %d", w.Code)
	}

	w = doRequest(router, "alice", "GET", "/api/drive/v1/qr?path=docs", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without name, got %d", w.Code)
	}
}

func TestTraversalOverHTTPRejected(t *testing.T) {
	router := setupRouter(t, nil, false)

	w := doRequest(router, "alice", "GET", "/api/drive/v1/list?path=..%2F..%2Fetc", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for traversal, got %d: %s", w.Code, w.Body.String())
	}
}

func TestStreamManifestAndSegment(t *testing.T) {
	router := setupRouter(t, nil, false)

	body, ct := multipartBody(t, "file", "video.mp4", "not really a video")
	w := doRequest(router, "alice", "POST", "/api/drive/v1/upload?path=", body, ct)
	if w.Code != http.StatusOK {
		t.Fatalf("upload returned %d", w.Code)
	}

	w = doRequest(router, "alice", "GET", "/api/drive/v1/stream/manifest?path=&name=video.mp4", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("manifest returned %d: %s", w.Code, w.Body.String())
	}
	manifest := w.Body.String()
	if !bytes.Contains([]byte(manifest), []byte("segment?path=")) {
		t.Errorf("Segment URIs not rewritten: %q", manifest)
	}

	w = doRequest(router, "alice", "GET", "/api/drive/v1/stream/segment?path=&name=video.mp4&segment=seg000000.ts", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("segment returned %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(router, "alice", "GET", "/api/drive/v1/stream/segment?path=&name=video.mp4&segment=..%2F..%2Fetc%2Fpasswd", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unsafe segment name, got %d", w.Code)
	}
}
