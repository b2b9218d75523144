package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/foxdrive/foxdrive-go/api"
	"github.com/foxdrive/foxdrive-go/api/notifyhub"
	"github.com/foxdrive/foxdrive-go/share"
	"github.com/foxdrive/foxdrive-go/storage"
	"github.com/foxdrive/foxdrive-go/stream"
	"github.com/foxdrive/foxdrive-go/tool"
	"github.com/foxdrive/foxdrive-go/upload"
)

func main() {
	cfg := tool.SetFlags()
	appCfg, err := tool.LoadConfig(cfg.UseConfigPath)
	if err != nil {
		tool.DefaultLogger.Fatalf("%v", err)
	}
	if cfg.UsePort > 0 {
		appCfg.Port = cfg.UsePort
	}
	if cfg.UseUsersRoot != "" {
		appCfg.UsersRoot = cfg.UseUsersRoot
	}
	if cfg.UseCacheRoot != "" {
		appCfg.CacheRoot = cfg.UseCacheRoot
	}
	if cfg.UseFFmpegPath != "" {
		appCfg.FFmpegPath = cfg.UseFFmpegPath
	}
	if cfg.UseSharedWrite {
		appCfg.SharedWriteEnabled = true
	}

	tool.InitLogger()
	switch strings.ToLower(cfg.Log) {
	case "", "dev":
		tool.DefaultLogger.SetLevel(log.DebugLevel)
	case "prod":
		tool.DefaultLogger.SetLevel(log.InfoLevel)
	case "none":
		tool.DefaultLogger.SetLevel(log.FatalLevel)
	default:
		tool.DefaultLogger.Warnf("Unknown log mode %q, using debug level", cfg.Log)
		tool.DefaultLogger.SetLevel(log.DebugLevel)
	}

	sandbox, err := storage.NewSandbox(appCfg.UsersRoot)
	if err != nil {
		tool.DefaultLogger.Fatalf("Failed to init users root: %v", err)
	}
	engine := storage.NewEngine(sandbox)
	grants := share.NewStore(appCfg.Grants, appCfg.SharedWriteEnabled)
	assembler := upload.NewAssembler(sandbox)
	cache, err := stream.NewCache(appCfg.CacheRoot, stream.NewFFmpegTranscoder(appCfg.FFmpegPath))
	if err != nil {
		tool.DefaultLogger.Fatalf("Failed to init stream cache: %v", err)
	}
	hub := notifyhub.New()

	tool.DefaultLogger.Infof("Users root: %s, cache root: %s, shared writes: %v, grants: %d",
		sandbox.UsersRoot(), appCfg.CacheRoot, appCfg.SharedWriteEnabled, len(appCfg.Grants))

	apiServer := api.NewServer(appCfg.Port, api.Deps{
		Storage:   engine,
		Shares:    grants,
		Assembler: assembler,
		Cache:     cache,
		Hub:       hub,
	})
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			tool.DefaultLogger.Fatalf("API server startup failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	tool.DefaultLogger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		tool.DefaultLogger.Errorf("Shutdown error: %v", err)
	}
}
