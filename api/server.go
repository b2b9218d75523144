package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/foxdrive/foxdrive-go/api/controllers"
	"github.com/foxdrive/foxdrive-go/api/middlewares"
	"github.com/foxdrive/foxdrive-go/api/notifyhub"
	"github.com/foxdrive/foxdrive-go/share"
	"github.com/foxdrive/foxdrive-go/storage"
	"github.com/foxdrive/foxdrive-go/stream"
	"github.com/foxdrive/foxdrive-go/tool"
	"github.com/foxdrive/foxdrive-go/types"
	"github.com/foxdrive/foxdrive-go/upload"
)

// Deps are the constructed subsystem services the server routes into.
type Deps struct {
	Storage   *storage.Engine
	Shares    *share.Store
	Assembler *upload.Assembler
	Cache     *stream.Cache
	Hub       *notifyhub.Hub
}

// Server represents the HTTP API server for the drive subsystem.
type Server struct {
	port   int
	deps   Deps
	engine *gin.Engine
	server *http.Server
	mu     sync.RWMutex
}

func NewServer(port int, deps Deps) *Server {
	s := &Server{port: port, deps: deps}
	if deps.Cache != nil && deps.Hub != nil {
		deps.Cache.OnReady = func(src, key string) {
			deps.Hub.Broadcast(&types.Notification{
				Type:  types.NotifyTypeTranscodeReady,
				Title: "Stream Ready",
				Data:  map[string]any{"key": key},
			})
		}
		deps.Cache.OnFailed = func(src, key string, err error) {
			deps.Hub.Broadcast(&types.Notification{
				Type:    types.NotifyTypeTranscodeFail,
				Title:   "Stream Failed",
				Message: err.Error(),
				Data:    map[string]any{"key": key},
			})
		}
	}
	return s
}

func (s *Server) setupRoutes() *gin.Engine {
	if tool.DefaultLogger.GetLevel() == log.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.Default()
	engine.Use(gin.Recovery())

	driveCtrl := controllers.NewDriveController(s.deps.Storage, s.deps.Shares)
	uploadCtrl := controllers.NewUploadController(s.deps.Assembler, s.deps.Shares, s.deps.Hub)
	streamCtrl := controllers.NewStreamController(s.deps.Storage, s.deps.Shares, s.deps.Cache)
	qrCtrl := controllers.NewQRController(s.deps.Shares)

	v1 := engine.Group("/api/drive/v1", middlewares.RequireIdentity)
	{
		v1.GET("/list", driveCtrl.HandleList)
		v1.POST("/mkdir", driveCtrl.HandleMkdir)
		v1.GET("/download", driveCtrl.HandleDownload)
		v1.GET("/open", driveCtrl.HandleOpen)
		v1.DELETE("/delete", driveCtrl.HandleDelete)
		v1.POST("/rename", driveCtrl.HandleRename)
		v1.POST("/move", driveCtrl.HandleMove)

		v1.POST("/upload/new", uploadCtrl.HandleNewUploadID)
		uploads := v1.Group("", middlewares.UploadRateLimit(100, 200))
		{
			uploads.POST("/upload", driveCtrl.HandleUpload)
			uploads.POST("/upload/chunk", uploadCtrl.HandleUploadChunk)
		}

		v1.GET("/stream/manifest", streamCtrl.HandleManifest)
		v1.GET("/stream/segment", streamCtrl.HandleSegment)
		v1.POST("/stream/rebuild", streamCtrl.HandleRebuild)

		v1.GET("/qr", qrCtrl.HandleDownloadQR)
		if s.deps.Hub != nil {
			v1.GET("/events-ws", notifyhub.HandleEventsWS(s.deps.Hub))
		}
	}

	return engine
}

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start() error {
	engine := s.setupRoutes()

	s.mu.Lock()
	s.engine = engine
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: engine,
	}
	s.mu.Unlock()

	tool.DefaultLogger.Infof("Starting drive API server on :%d", s.port)
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests. Running transcodes are left alone so
// they can finish populating the cache.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	server := s.server
	s.mu.RUnlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}
