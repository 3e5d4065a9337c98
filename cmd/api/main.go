package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"

	"foreman/api/internal/app"
	"foreman/api/internal/blob"
	"foreman/api/internal/config"
	"foreman/api/internal/email"
	"foreman/api/internal/journal"
	"foreman/api/internal/live"
	"foreman/api/internal/search"
	"foreman/api/internal/session"
	"foreman/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fsClient, err := firestore.NewClient(ctx, cfg.FirestoreProject)
	if err != nil {
		log.Fatalf("firestore connection failed: %v", err)
	}
	dataStore := store.NewFirestoreStore(fsClient)
	defer dataStore.Close()

	blobStore, err := blob.New(ctx, blob.Config{
		Endpoint:  cfg.BlobEndpoint,
		AccessKey: cfg.BlobAccessKey,
		SecretKey: cfg.BlobSecretKey,
		Bucket:    cfg.BlobBucket,
		UseSSL:    cfg.BlobUseSSL,
		URLTTL:    cfg.ContentURLTTL,
	})
	if err != nil {
		log.Fatalf("blob storage failed: %v", err)
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, nil)

	var journalService *journal.Service
	if strings.TrimSpace(cfg.JournalDir) != "" {
		if err := os.MkdirAll(cfg.JournalDir, 0o755); err != nil {
			log.Fatalf("failed to create journal dir: %v", err)
		}
		journalService = journal.New(cfg.JournalDir)
	}

	mailService := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})

	// Redis carries refresh tokens and the revocation list when reachable;
	// the Firestore store takes over otherwise so a missing Redis never
	// blocks startup.
	var service *app.Service
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Printf("WARNING: redis unavailable, using Firestore for sessions: %v", err)
			service = app.New(cfg, dataStore, dataStore, blobStore, journalService, searchService, mailService)
		} else {
			log.Printf("Using Redis for session storage")
			defer redisStore.Close()
			service = app.New(cfg, dataStore, redisStore, blobStore, journalService, searchService, mailService)
		}
	} else {
		log.Printf("Using Firestore for session storage")
		service = app.New(cfg, dataStore, dataStore, blobStore, journalService, searchService, mailService)
	}

	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}

	// One watcher serializes aggregation passes. Collection listeners and
	// the service's own mutations all funnel into its kick channel; the
	// portal writes uploads and read receipts directly to Firestore, so the
	// listeners are what keep those visible without a poll loop.
	watcher := live.NewWatcher(service.RunRefresh)
	service.AttachRefresher(watcher)
	go watcher.Run(ctx)
	go watcher.Forward(ctx, dataStore.WatchStatuses(ctx, store.StatusRead))
	go watcher.Forward(ctx, dataStore.WatchStatuses(ctx, store.StatusApproval))
	go watcher.Forward(ctx, dataStore.WatchProjects(ctx))
	go watcher.Forward(ctx, dataStore.WatchCustomers(ctx))

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Foreman API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
