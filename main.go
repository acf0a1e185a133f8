package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"

	"magnetar/api"
	"magnetar/config"
	"magnetar/handlers"
	"magnetar/services/cascade"
	"magnetar/services/store"
	"magnetar/services/tor"
	"magnetar/services/torrentio"
)

const version = "1.2.0"

func main() {
	configPath := flag.String("config", "", "path to settings file (default data/settings.json)")
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = os.Getenv("MAGNETAR_CONFIG")
	}
	if path == "" {
		path = filepath.Join("data", "settings.json")
	}

	cfgManager := config.NewManager(path)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// File logging with rotation alongside stdout.
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			log.Printf("warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("logging to %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	transport, err := tor.NewTransport(settings.Tor)
	if err != nil {
		log.Fatalf("failed to build transport: %v", err)
	}
	if transport.Probe() {
		log.Printf("[main] tor proxy reachable at %s:%d", settings.Tor.Host, settings.Tor.SocksPort)
	} else {
		log.Printf("[main] tor proxy unreachable, direct fallback=%v", settings.Tor.AllowDirectFallback)
	}

	osFs := afero.NewOsFs()
	buckets := []string{
		config.BucketAggregator, config.BucketPrimary, config.BucketAnime,
		config.BucketFallback, config.BucketEnglish,
	}
	stores := make(map[string]*store.Store, len(buckets))
	for _, bucket := range buckets {
		st := store.New(bucket, settings.Stores.Path(bucket), osFs)
		if err := st.Load(); err != nil {
			log.Printf("[main] store %s failed to load, starting empty: %v", bucket, err)
		}
		stores[bucket] = st
	}

	sinks := make(map[string]torrentio.Sink, len(stores))
	indexStores := make(map[string]cascade.IndexStore, len(stores))
	adminStores := make(map[string]handlers.ReloadableStore, len(stores))
	for name, st := range stores {
		sinks[name] = st
		indexStores[name] = st
		adminStores[name] = st
	}

	adapter := torrentio.NewAdapter("", transport, settings.Search, sinks)
	resolver := cascade.New(settings, indexStores, adapter)

	streamHandler := handlers.NewStreamHandler(resolver, version)
	adminHandler := handlers.NewAdminHandler(adminStores, resolver, transport)
	router := api.NewRouter(streamHandler, adminHandler)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		log.Printf("[main] magnetar %s listening on %s", version, addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Printf("[main] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] shutdown error: %v", err)
	}
}
